package main

import (
	"testing"

	grpc_adapter "github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/in/identity"
	memory_adapter "github.com/JoeShih716/go-mem-bank/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-mem-bank/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-bank/internal/config"
)

const linkingService = "linking.v1.LinkingService"

func TestLinkingServiceIsOptIn(t *testing.T) {
	store, err := memory_adapter.NewMutexLedger(nil)
	if err != nil {
		t.Fatalf("NewMutexLedger: %v", err)
	}
	facade := usecase.NewCore(store, nil, usecase.DefaultConfig())
	sessions := identity.NewTrustedHeader(nil)

	cases := []struct {
		name  string
		serve bool
	}{
		{"disabled by default", false},
		{"enabled", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Linking: config.LinkingConfig{Serve: tc.serve}}
			gs := newGrpcServer(cfg, facade, sessions, store)
			defer gs.Stop()

			services := gs.GetServiceInfo()
			if _, ok := services[grpc_adapter.ServiceName]; !ok {
				t.Fatalf("%s not registered", grpc_adapter.ServiceName)
			}
			if _, ok := services[linkingService]; ok != tc.serve {
				t.Fatalf("linking service registered = %v, want %v", ok, tc.serve)
			}
		})
	}
}
