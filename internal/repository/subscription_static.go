package repository

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
)

// StaticSubscriptions serves a fixed master→followers routing table, used in
// MOCK and development setups without a relational store.
type StaticSubscriptions struct {
	routes map[string][]models.FollowerConfig
}

type staticFile struct {
	Masters map[string][]models.FollowerConfig `yaml:"masters"`
}

func NewStaticSubscriptions(routes map[string][]models.FollowerConfig) *StaticSubscriptions {
	if routes == nil {
		routes = make(map[string][]models.FollowerConfig)
	}
	return &StaticSubscriptions{routes: routes}
}

// LoadStaticSubscriptions reads a yaml file of the form
//
//	masters:
//	  "5012345":
//	    - follower_id: u-1
//	      login: 7001
func LoadStaticSubscriptions(path string) (*StaticSubscriptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse subscriptions: %w", err)
	}
	return NewStaticSubscriptions(f.Masters), nil
}

func (s *StaticSubscriptions) Followers(_ context.Context, masterID string) ([]models.FollowerConfig, error) {
	return append([]models.FollowerConfig(nil), s.routes[masterID]...), nil
}

var _ drepo.SubscriptionSource = (*StaticSubscriptions)(nil)
