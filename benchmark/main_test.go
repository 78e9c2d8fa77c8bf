package main

import "testing"

func TestRunDemo(t *testing.T) {
	if err := runDemo(); err != nil {
		t.Fatalf("runDemo failed: %v", err)
	}
}
