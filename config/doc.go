// Package config 提供 teamflow 的配置管理功能。
//
// 包含配置加载（默认值 → YAML → 环境变量）、校验，
// 以及基于 fsnotify 的配置文件变更监听。
package config
