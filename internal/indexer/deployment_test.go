package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"stakeScope/internal/model"
)

var contract = common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")

func TestResolveKnownBlock(t *testing.T) {
	fake := &fakeChain{head: 20_000, deployed: true, deployedAt: 12_984}
	resolver := NewDeploymentResolver(fake, nil)

	got, err := resolver.Resolve(context.Background(), contract, model.DeploymentBlockConfig{KnownBlock: 19_000})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 19_000 {
		t.Fatalf("expected known block, got %d", got)
	}
	if fake.codeCalls != 1 || fake.headCalls != 0 {
		t.Fatalf("known block should skip search: code=%d head=%d", fake.codeCalls, fake.headCalls)
	}
}

func TestResolveBinarySearchBoundary(t *testing.T) {
	for _, deployedAt := range []uint64{0, 1, 12_345, 19_999, 20_000} {
		fake := &fakeChain{head: 20_000, deployed: true, deployedAt: deployedAt}
		resolver := NewDeploymentResolver(fake, nil)

		got, err := resolver.Resolve(context.Background(), contract, model.DeploymentBlockConfig{})
		if err != nil {
			t.Fatalf("resolve %d: %v", deployedAt, err)
		}
		if got != deployedAt {
			t.Fatalf("expected %d, got %d", deployedAt, got)
		}
		if fake.codeCalls > 17 {
			t.Fatalf("too many code lookups: %d", fake.codeCalls)
		}
	}
}

func TestResolveWrongKnownBlockFallsBackToSearch(t *testing.T) {
	fake := &fakeChain{head: 1_000, deployed: true, deployedAt: 500}
	resolver := NewDeploymentResolver(fake, nil)

	got, err := resolver.Resolve(context.Background(), contract, model.DeploymentBlockConfig{KnownBlock: 100})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != 500 {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestResolveCachesResult(t *testing.T) {
	fake := &fakeChain{head: 1_000, deployed: true, deployedAt: 500}
	resolver := NewDeploymentResolver(fake, nil)

	if _, err := resolver.Resolve(context.Background(), contract, model.DeploymentBlockConfig{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	calls := fake.codeCalls
	if _, err := resolver.Resolve(context.Background(), contract, model.DeploymentBlockConfig{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if fake.codeCalls != calls {
		t.Fatalf("expected cached result, code calls %d -> %d", calls, fake.codeCalls)
	}
}

func TestResolveFallback(t *testing.T) {
	cases := []struct {
		name   string
		offset uint64
		want   uint64
	}{
		{name: "offset", offset: 100, want: 900},
		{name: "clamped", offset: 5_000, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeChain{head: 1_000}
			resolver := NewDeploymentResolver(fake, nil)

			got, err := resolver.Resolve(context.Background(), contract, model.DeploymentBlockConfig{FallbackOffset: tc.offset})
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestResolveWithoutFallback(t *testing.T) {
	fake := &fakeChain{head: 1_000}
	resolver := NewDeploymentResolver(fake, nil)

	_, err := resolver.Resolve(context.Background(), contract, model.DeploymentBlockConfig{})
	if !errors.Is(err, ErrDeploymentUnresolved) {
		t.Fatalf("expected ErrDeploymentUnresolved, got %v", err)
	}
}
