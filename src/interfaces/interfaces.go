package interfaces

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Module 是可启动/关闭的组件的统一生命周期接口
type Module interface {
	Start(ctx context.Context) error
	Close(ctx context.Context)
}

type Logger struct {
	*logrus.Logger
}
