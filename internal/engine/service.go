package engine

import (
	"context"
	"fmt"
)

// Runner executes a function on the engine's scheduler and waits for it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// ProfileStore persists row assignments by actuator key.
type ProfileStore interface {
	Load(ctx context.Context) (map[ActuatorKey]Assignment, error)
	Save(ctx context.Context, key ActuatorKey, asg Assignment) error
}

// Service is the goroutine-safe front of an Engine. Blocking I/O (device
// discovery, profile storage) happens here, off the scheduler.
type Service struct {
	engine    *Engine
	runner    Runner
	inventory Inventory
	profiles  ProfileStore
	logger    Logger
}

// NewService creates a service. profiles may be nil to disable persistence.
func NewService(engine *Engine, runner Runner, inventory Inventory, profiles ProfileStore, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		engine:    engine,
		runner:    runner,
		inventory: inventory,
		profiles:  profiles,
		logger:    logger,
	}
}

// RefreshDevices re-reads the inventory from the channel. A running
// mapping is stopped and must be started again.
func (s *Service) RefreshDevices(ctx context.Context) ([]Device, error) {
	devices, err := s.inventory.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	var saved map[ActuatorKey]Assignment
	if s.profiles != nil {
		saved, err = s.profiles.Load(ctx)
		if err != nil {
			s.logger.Warn("loading saved assignments failed, using defaults", "error", err)
			saved = nil
		}
	}

	var out []Device
	if err := s.runner.Do(ctx, func() {
		s.engine.SetDevices(devices, saved)
		out = s.engine.Devices()
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Devices returns the current inventory.
func (s *Service) Devices(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := s.runner.Do(ctx, func() { out = s.engine.Devices() }); err != nil {
		return nil, err
	}
	return out, nil
}

// Start starts mapping.
func (s *Service) Start(ctx context.Context) (Status, error) {
	return s.transition(ctx, s.engine.Start)
}

// Stop stops mapping and zeroes every actuator.
func (s *Service) Stop(ctx context.Context) (Status, error) {
	return s.transition(ctx, s.engine.Stop)
}

func (s *Service) transition(ctx context.Context, fn func() error) (Status, error) {
	var (
		status Status
		err    error
	)
	if doErr := s.runner.Do(ctx, func() {
		err = fn()
		status = s.engine.Status()
	}); doErr != nil {
		return Status{}, doErr
	}
	return status, err
}

// Status returns an engine snapshot.
func (s *Service) Status(ctx context.Context) (Status, error) {
	var status Status
	if err := s.runner.Do(ctx, func() { status = s.engine.Status() }); err != nil {
		return Status{}, err
	}
	return status, nil
}

// UpdateRow changes a row's assignment and persists it.
func (s *Service) UpdateRow(ctx context.Context, position int, asg Assignment) (RowView, error) {
	var (
		view RowView
		err  error
	)
	if doErr := s.runner.Do(ctx, func() {
		if err = s.engine.SetAssignment(position, asg); err != nil {
			return
		}
		view, err = s.engine.Row(position)
	}); doErr != nil {
		return RowView{}, doErr
	}
	if err != nil {
		return RowView{}, err
	}

	if s.profiles != nil {
		key := ActuatorKey{DeviceName: view.DeviceName, ActuatorIndex: view.ActuatorIndex}
		if err := s.profiles.Save(ctx, key, asg); err != nil {
			return view, fmt.Errorf("saving assignment: %w", err)
		}
	}
	return view, nil
}
