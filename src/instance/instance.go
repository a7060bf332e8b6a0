package instance

import (
	"context"
	"sync"

	"github.com/bluele/gcache"

	"github.com/dylive-go/dylive-go/src/interfaces"
	"github.com/dylive-go/dylive-go/src/storage"
)

type Instance struct {
	WaitGroup       sync.WaitGroup
	Cache           gcache.Cache
	Store           storage.Store
	Server          interfaces.Module
	EventDispatcher interfaces.Module
	RoomManager     interfaces.Module
	Scheduler       interfaces.Module
}

type instanceKey struct{}

// Key 用于在 context 中携带 *Instance
var Key = instanceKey{}

// GetInstance 从 context 中取出全局实例，未设置时返回 nil
func GetInstance(ctx context.Context) *Instance {
	if inst, ok := ctx.Value(Key).(*Instance); ok {
		return inst
	}
	return nil
}
