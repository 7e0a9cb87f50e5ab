package solution

import (
	"context"

	"github.com/BaSui01/teamflow/workflow"
)

// ExecuteWorkflow 用 HandleEvent 作为分发函数运行图工作流
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, def *workflow.Definition, opts ...workflow.Option) (workflow.Result, error) {
	name := ""
	if def != nil {
		name = def.Name
	}

	opts = append([]workflow.Option{workflow.WithLogger(o.rootLogger)}, opts...)
	engine, err := workflow.NewEngine(def, opts...)
	if err != nil {
		o.metrics.RecordWorkflowRun(name, "invalid")
		return workflow.Result{}, err
	}

	res, err := engine.Run(ctx, workflow.DispatcherFunc(o.HandleEvent))
	if err != nil {
		o.metrics.RecordWorkflowRun(name, "error")
		return workflow.Result{}, err
	}
	o.metrics.RecordWorkflowRun(name, string(res.Status))
	return res, nil
}

// ExecuteWorkflowFile 加载工作流定义文件并执行
func (o *Orchestrator) ExecuteWorkflowFile(ctx context.Context, path string, opts ...workflow.Option) (workflow.Result, error) {
	def, err := workflow.LoadDefinition(path)
	if err != nil {
		return workflow.Result{}, err
	}
	return o.ExecuteWorkflow(ctx, def, opts...)
}
