package server

import (
	"fmt"
	"reflect"
)

// methodSpec captures one callable RPC method on a service receiver.
type methodSpec struct {
	method    reflect.Method
	argType   reflect.Type
	replyType reflect.Type
}

// service holds a registered receiver and its RPC-shaped methods.
type service struct {
	name    string
	rcvr    reflect.Value
	typ     reflect.Type
	methods map[string]*methodSpec
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// newService wraps a receiver (a pointer to a struct, e.g. &Arith{}) and
// scans its exported methods for the RPC signature:
//
//	func (recv *T) Method(args *Args, reply *Reply) error
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: receiver must be a pointer, got %s", typ.Kind())
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &service{
		name:    typ.Elem().Name(),
		rcvr:    reflect.ValueOf(rcvr),
		typ:     typ,
		methods: make(map[string]*methodSpec),
	}

	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		mt := m.Type
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
			mt.In(1).Kind() != reflect.Ptr || mt.In(2).Kind() != reflect.Ptr {
			continue
		}
		svc.methods[m.Name] = &methodSpec{
			method:    m,
			argType:   mt.In(1).Elem(),
			replyType: mt.In(2).Elem(),
		}
	}
	if len(svc.methods) == 0 {
		return nil, fmt.Errorf("server: %s has no methods matching func(*Args, *Reply) error", svc.name)
	}
	return svc, nil
}

// call invokes the method on the receiver with already-populated argument
// and reply values.
func (s *service) call(spec *methodSpec, argv, replyv reflect.Value) error {
	results := spec.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if err := results[0]; !err.IsNil() {
		return err.Interface().(error)
	}
	return nil
}
