// Package backup periodically copies vault records to their backup
// keys so a corrupted record does not cost the whole history.
package backup

import (
	"fmt"
	"log"
	"sync"

	rcron "github.com/robfig/cron/v3"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/vault"
)

type Service struct {
	v        *vault.Vault
	schedule string

	mu    sync.Mutex
	users map[string]struct{}
	cron  *rcron.Cron
}

// NewService schedules backups with a six-field cron expression.
func NewService(v *vault.Vault, schedule string) *Service {
	return &Service{
		v:        v,
		schedule: schedule,
		users:    make(map[string]struct{}),
	}
}

// Track adds a user to the backup set. Tracking twice is harmless.
func (s *Service) Track(user string) {
	if user == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = struct{}{}
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := rcron.New(rcron.WithSeconds())
	if _, err := c.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("schedule vault backup %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	log.Printf("[backup] scheduled at %q", s.schedule)
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
}

// RunOnce backs up every tracked user. Failures are logged per user;
// one bad record never blocks the rest.
func (s *Service) RunOnce() {
	s.mu.Lock()
	users := make([]string, 0, len(s.users))
	for user := range s.users {
		users = append(users, user)
	}
	s.mu.Unlock()

	for _, user := range users {
		if err := s.v.Backup(user); err != nil {
			log.Printf("[backup] %s: %v", user, err)
		}
	}
	if len(users) > 0 {
		log.Printf("[backup] completed for %d users", len(users))
	}
}
