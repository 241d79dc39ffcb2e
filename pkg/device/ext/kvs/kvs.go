// Package kvs provides access to the server side key-value store of a
// device.
package kvs

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// Name is the core extension name. Handlers look it up as "_kvs".
const Name = "kvs"

// DefaultTimeout bounds how long a Get waits for the server reply.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is delivered to a Get callback when no reply arrived in time.
var ErrTimeout = errors.New("kvs: request timed out")

// GetFunc receives the result of a Get. It runs on the device event loop.
type GetFunc func(value any, err error)

// KVS sends _getKvs and _setKvs requests and routes _getKvs replies back to
// the waiting callbacks.
type KVS struct {
	ext.Base

	host    ext.Host
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*request
	order   []string
}

type request struct {
	key   string
	cb    GetFunc
	timer *time.Timer
}

var _ ext.Extension = (*KVS)(nil)

// New is the extension factory.
func New(h ext.Host) (ext.Extension, error) {
	return &KVS{
		host:    h,
		timeout: DefaultTimeout,
		pending: map[string]*request{},
	}, nil
}

// Set stores value under key. Maps, slices and structs are stored as their
// JSON text. A zero lifetime keeps the item until it is overwritten.
func (k *KVS) Set(key string, value any, lifetime time.Duration) error {
	if key == "" {
		return errors.New("kvs: empty key")
	}

	stored, err := encodeValue(value)
	if err != nil {
		return err
	}

	var life any
	if lifetime > 0 {
		life = int64(lifetime / time.Second)
	}

	return k.host.Send(protocol.CmdSetKvs, protocol.Args{
		"key":      key,
		"value":    stored,
		"lifetime": life,
	})
}

// Get requests the item stored under key. cb is called exactly once, with
// the value or with an error. Get must not be awaited from a command
// handler: the reply is delivered on the same event loop.
func (k *KVS) Get(key string, cb GetFunc) error {
	if key == "" {
		return errors.New("kvs: empty key")
	}
	if cb == nil {
		return errors.New("kvs: nil callback")
	}

	id := uuid.NewString()
	req := &request{key: key, cb: cb}

	k.mu.Lock()
	k.pending[id] = req
	k.order = append(k.order, id)
	req.timer = time.AfterFunc(k.timeout, func() {
		if r := k.take(id); r != nil {
			k.host.Post(func() { r.cb(nil, ErrTimeout) })
		}
	})
	k.mu.Unlock()

	err := k.host.Send(protocol.CmdGetKvs, protocol.Args{
		"key":       key,
		"requestId": id,
	})
	if err != nil {
		if r := k.take(id); r != nil {
			r.timer.Stop()
		}
		return fmt.Errorf("kvs: send request: %w", err)
	}
	return nil
}

// OnCmdReceive completes pending requests from _getKvs replies. Replies are
// matched by requestId, or by key for servers that do not echo the id.
func (k *KVS) OnCmdReceive(cmd string, args protocol.Args, _ int64) error {
	if cmd != protocol.CmdGetKvs {
		return nil
	}

	var r *request
	if id, ok := args.String("requestId"); ok {
		r = k.take(id)
	} else if key, ok := args.String("key"); ok {
		r = k.takeByKey(key)
	}
	if r == nil {
		return nil
	}
	r.timer.Stop()

	if msg, ok := args["error"]; ok && msg != nil {
		r.cb(nil, fmt.Errorf("kvs: %v", msg))
		return nil
	}
	r.cb(args["value"], nil)
	return nil
}

// Pending returns the number of requests waiting for a reply.
func (k *KVS) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}

func (k *KVS) take(id string) *request {
	k.mu.Lock()
	defer k.mu.Unlock()
	r, ok := k.pending[id]
	if !ok {
		return nil
	}
	delete(k.pending, id)
	k.dropOrder(id)
	return r
}

func (k *KVS) takeByKey(key string) *request {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, id := range k.order {
		if r := k.pending[id]; r != nil && r.key == key {
			delete(k.pending, id)
			k.dropOrder(id)
			return r
		}
	}
	return nil
}

func (k *KVS) dropOrder(id string) {
	for i, v := range k.order {
		if v == id {
			k.order = append(k.order[:i], k.order[i+1:]...)
			return
		}
	}
}

func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("kvs: encode value: %w", err)
		}
		return string(b), nil
	}
	return v, nil
}
