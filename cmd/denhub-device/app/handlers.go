package app

import (
	"errors"
	"time"

	"github.com/autopeer-io/denhub/pkg/device"
	"github.com/autopeer-io/denhub/pkg/device/ext/kvs"
	"github.com/autopeer-io/denhub/pkg/log"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// NewHandlers serves the commands of the reference device. A command must
// also be declared in config.json to be reachable.
func NewHandlers(_ *device.Config, logger log.Logger, helper *device.Helper) (device.Handlers, error) {
	store, _ := helper.Extension("_kvs").(*kvs.KVS)

	return device.Handlers{
		"ping": func(_ protocol.Args, resp *device.Responder) bool {
			resp.Send(nil, "pong")
			return false
		},
		"echo": func(args protocol.Args, resp *device.Responder) bool {
			logger.Info("Echo", "args", args)
			resp.Send(nil, args)
			return false
		},
		"remember": func(args protocol.Args, resp *device.Responder) bool {
			key, ok := args.String("key")
			if !ok || key == "" || store == nil {
				resp.Send(errors.New("remember needs a key"), nil)
				return false
			}
			lifetime, _ := args.Int64("lifetimeSec")
			if err := store.Set(key, args["value"], time.Duration(lifetime)*time.Second); err != nil {
				resp.Send(err, nil)
				return false
			}
			return true
		},
		"recall": func(args protocol.Args, resp *device.Responder) bool {
			key, ok := args.String("key")
			if !ok || key == "" || store == nil {
				resp.Send(errors.New("recall needs a key"), nil)
				return false
			}
			if err := store.Get(key, func(value any, err error) {
				resp.Send(err, value)
			}); err != nil {
				resp.Send(err, nil)
			}
			return false
		},
	}, nil
}
