package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ontio/ontology-eventbus/actor"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
)

type jobReq struct {
	name string
	fn   func() error
	done chan error
}

// keyActor runs the jobs of one key in mailbox order.
type keyActor struct {
	key string
}

func (this *keyActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Stopping:
		log.Debugf("[KeyedSerializer] actor for %s stopping", this.key)
	case *actor.Started:
		log.Debugf("[KeyedSerializer] actor for %s started", this.key)
	case *jobReq:
		msg.done <- runJob(this.key, msg)
	}
}

func runJob(key string, job *jobReq) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[KeyedSerializer] job %s for %s panicked: %v", job.name, key, r)
			err = fmt.Errorf("job %s panicked: %v", job.name, r)
		}
	}()
	return job.fn()
}

// KeyedSerializer runs jobs submitted under the same key one after the
// other while jobs of different keys run concurrently.
type KeyedSerializer struct {
	name    string
	lock    sync.Mutex
	actors  map[string]*actor.PID
	stopped bool
}

func NewKeyedSerializer(name string) *KeyedSerializer {
	return &KeyedSerializer{
		name:   name,
		actors: make(map[string]*actor.PID),
	}
}

func (this *KeyedSerializer) pid(key string) (*actor.PID, error) {
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.stopped {
		return nil, errors.ErrStopped.Newf("%s serializer", this.name)
	}
	if pid, ok := this.actors[key]; ok {
		return pid, nil
	}
	props := actor.FromProducer(func() actor.Actor { return &keyActor{key: key} })
	pid, err := actor.SpawnNamed(props, fmt.Sprintf("%s_%s", this.name, uuid.New().String()))
	if err != nil {
		return nil, errors.Wrapf(err, "spawn %s actor for %s", this.name, key)
	}
	this.actors[key] = pid
	return pid, nil
}

// Submit queues fn behind the pending jobs of key. The returned channel
// yields the job's result once it ran.
func (this *KeyedSerializer) Submit(key string, name string, fn func() error) (<-chan error, error) {
	pid, err := this.pid(key)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	pid.Tell(&jobReq{name: name, fn: fn, done: done})
	return done, nil
}

// Do submits fn and waits for it. If ctx is done first the job still runs
// and ctx's error is returned.
func (this *KeyedSerializer) Do(ctx context.Context, key string, name string, fn func() error) error {
	done, err := this.Submit(key, name, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (this *KeyedSerializer) Stop() {
	this.lock.Lock()
	defer this.lock.Unlock()
	if this.stopped {
		return
	}
	this.stopped = true
	for key, pid := range this.actors {
		pid.Stop()
		delete(this.actors, key)
	}
}
