package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ElliotLearnsThings/KVOpt/client"
	"github.com/ElliotLearnsThings/KVOpt/internal/persist"
	"github.com/ElliotLearnsThings/KVOpt/internal/server"
	"github.com/ElliotLearnsThings/KVOpt/internal/store"
)

const benchPairs = 10000

func main() {
	if err := runDemo(); err != nil {
		panic(err)
	}
}

func runDemo() error {
	dir, err := os.MkdirTemp("", "kvopt-bench")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	srv := server.New(server.Config{
		In:            inR,
		Out:           outW,
		Store:         st,
		Persister:     persist.New(dir, st, nil),
		SaveDirtyOnly: true,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx)
	}()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed before ready: %w", err)
		}
		return fmt.Errorf("server exited before ready")
	case <-time.After(3 * time.Second):
		return fmt.Errorf("server did not become ready")
	}

	c := client.New(inW, outR)

	if err := c.Insert([]byte("hello"), []byte("world"), 0); err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	payload, err := c.Get([]byte("hello"))
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}
	fmt.Printf("get hello => %s\n", bytes.TrimRight(payload, "\x00"))

	if err := c.Remove([]byte("hello")); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}

	start := time.Now()
	for i := 0; i < benchPairs; i++ {
		key := fmt.Appendf(nil, "bench-%05d", i)
		if err := c.Insert(key, key, 300); err != nil {
			return fmt.Errorf("bench insert failed: %w", err)
		}
	}
	for i := 0; i < benchPairs; i++ {
		key := fmt.Appendf(nil, "bench-%05d", i)
		if _, err := c.Get(key); err != nil {
			return fmt.Errorf("bench get failed: %w", err)
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("%d inserts + %d gets in %s (%.0f ops/sec)\n",
		benchPairs, benchPairs, elapsed, float64(2*benchPairs)/elapsed.Seconds())

	if err := c.Halt(); err != nil {
		return fmt.Errorf("halt failed: %w", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stop error: %w", err)
		}
	case <-time.After(3 * time.Second):
		return fmt.Errorf("server shutdown timeout")
	}

	return nil
}
