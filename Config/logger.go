package Config

import "go.uber.org/zap"

// NewLogger debug 模式使用开发配置（可读、debug级别），否则使用生产配置（JSON、info级别）
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
