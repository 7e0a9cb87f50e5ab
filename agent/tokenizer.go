package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator 估算一次分发消耗的 token 数
type TokenEstimator interface {
	Estimate(payload map[string]any) int
}

// LengthEstimator 以 payload 的 JSON 文本长度作为 token 数
type LengthEstimator struct{}

func (LengthEstimator) Estimate(payload map[string]any) int {
	return len(renderPayload(payload))
}

func renderPayload(payload map[string]any) string {
	if payload == nil {
		return "{}"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(data)
}

// 模型名到 tiktoken 编码的映射，按前缀匹配
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"o1", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
	{"text-embedding-3", "cl100k_base"},
}

// TiktokenEstimator 用 BPE 编码计数 payload 的 JSON 文本。
// 编码在首次使用时懒加载；加载失败时退化为 LengthEstimator。
type TiktokenEstimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenEstimator picks the encoding for model, defaulting to cl100k_base.
func NewTiktokenEstimator(model string) *TiktokenEstimator {
	encoding := "cl100k_base"
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			encoding = m.encoding
			break
		}
	}
	return &TiktokenEstimator{encoding: encoding}
}

func (t *TiktokenEstimator) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Encoding returns the selected encoding name.
func (t *TiktokenEstimator) Encoding() string { return t.encoding }

func (t *TiktokenEstimator) Estimate(payload map[string]any) int {
	text := renderPayload(payload)
	if err := t.init(); err != nil {
		return len(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// NewEstimator returns the estimator named by kind ("length" or "tiktoken").
func NewEstimator(kind, model string) (TokenEstimator, error) {
	switch kind {
	case "", "length":
		return LengthEstimator{}, nil
	case "tiktoken":
		return NewTiktokenEstimator(model), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", kind)
	}
}
