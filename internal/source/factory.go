// Copyright (c) 2026 Shuhai. All rights reserved.

package source

import "fmt"

// New returns the client for a provider, or an error for unknown names.
func New(p Provider, opts Options) (Client, error) {
	switch p {
	case ProviderFanqie:
		return NewFanqie(opts), nil
	case ProviderQimao:
		return NewQimao(opts), nil
	case ProviderBiquge:
		return NewBiquge(opts), nil
	default:
		return nil, fmt.Errorf("source: unknown provider %q", p)
	}
}

// NewFactory builds a Factory that constructs one client per provider and
// caches it for the process lifetime.
func NewFactory(opts Options) Factory {
	clients := make(map[Provider]Client, len(All()))
	for _, p := range All() {
		client, _ := New(p, opts)
		clients[p] = client
	}

	return func(p Provider) (Client, error) {
		client, ok := clients[p]
		if !ok {
			return nil, fmt.Errorf("source: unknown provider %q", p)
		}
		return client, nil
	}
}
