package consul

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	conf "github.com/webitel/datum-exporter/config"
	"github.com/webitel/datum-exporter/internal/errors"
	"github.com/webitel/datum-exporter/registry"
)

type ConsulRegistry struct {
	registrationConfig *consulapi.AgentServiceRegistration
	client             *consulapi.Client
	stop               chan struct{}
	stopOnce           sync.Once
	checkId            string
}

// NewConsulRegistry creates a new Consul registry instance.
func NewConsulRegistry(config *conf.ConsulConfig) (*ConsulRegistry, error) {
	registration, err := newRegistration(config)
	if err != nil {
		return nil, err
	}

	consulConfig := consulapi.DefaultConfig()
	consulConfig.Address = config.Address
	client, err := consulapi.NewClient(consulConfig)
	if err != nil {
		return nil, errors.Internal(
			err.Error(),
			errors.WithID("consul.registry.new_consul_registry.consulapi_creation.error"),
		)
	}

	return &ConsulRegistry{
		registrationConfig: registration,
		client:             client,
		stop:               make(chan struct{}),
	}, nil
}

// newRegistration builds the agent registration with a TTL check for the public address.
func newRegistration(config *conf.ConsulConfig) (*consulapi.AgentServiceRegistration, error) {
	if config.Id == "" {
		return nil, errors.InvalidArgument(
			"service id is empty! (set it by '-id' flag)",
			errors.WithID("consul.registry.new_consul.check_args.service_id"),
		)
	}
	ip, port, err := net.SplitHostPort(config.PublicAddress)
	if err != nil {
		return nil, errors.InvalidArgument(
			"unable to parse address",
			errors.WithID("consul.registry.new_consul.parse_address.error"),
			errors.WithCause(err),
		)
	}
	parsedPort, err := strconv.Atoi(port)
	if err != nil {
		return nil, errors.InvalidArgument(
			"unable to parse port",
			errors.WithID("consul.registry.new_consul.parse_port.error"),
			errors.WithCause(err),
		)
	}

	return &consulapi.AgentServiceRegistration{
		ID:      config.Id,
		Name:    registry.ServiceName,
		Port:    parsedPort,
		Address: ip,
		Check: &consulapi.AgentServiceCheck{
			DeregisterCriticalServiceAfter: registry.DeregisterCriticalServiceAfter.String(),
			TTL:                            registry.CheckInterval.String(),
		},
	}, nil
}

// Register registers the service with Consul.
func (c *ConsulRegistry) Register() error {
	err := c.client.Agent().ServiceRegister(c.registrationConfig)
	if err != nil {
		return errors.Internal(
			err.Error(),
			errors.WithID("consul.registry.consul.register.error"),
		)
	}
	var checks map[string]*consulapi.AgentCheck
	if checks, err = c.client.Agent().Checks(); err != nil {
		return errors.Internal(
			err.Error(),
			errors.WithID("consul.registry.consul.register.get_checks.error"),
		)
	}

	var serviceCheck *consulapi.AgentCheck
	for _, check := range checks {
		if check.ServiceID == c.registrationConfig.ID {
			serviceCheck = check
		}
	}

	if serviceCheck == nil {
		return errors.Internal(
			"service check not found",
			errors.WithID("consul.registry.consul.register.error"),
		)
	}
	c.checkId = serviceCheck.CheckID
	go c.runServiceCheck()
	return nil
}

func (c *ConsulRegistry) Deregister() error {
	c.stopOnce.Do(func() { close(c.stop) })
	err := c.client.Agent().ServiceDeregister(c.registrationConfig.ID)
	if err != nil {
		return errors.Internal(
			err.Error(),
			errors.WithID("consul.registry.consul.deregister.error"),
		)
	}
	slog.Info("datum_exporter.consul.deregistered", slog.String("service_id", c.registrationConfig.ID))
	return nil
}

func (c *ConsulRegistry) doUpdateTTL() error {
	err := c.client.Agent().UpdateTTL(c.checkId, "success", consulapi.HealthPassing)
	if err != nil {
		slog.Error("datum_exporter.consul.check_in_failed", slog.String("error", err.Error()))
		return err
	}
	return nil // [OK]
}

func (c *ConsulRegistry) runServiceCheck() {
	if err := c.doUpdateTTL(); err == nil {
		slog.Info("datum_exporter.consul.registered", slog.String("service_id", c.registrationConfig.ID))
	}
	defer slog.Info("datum_exporter.consul.checker_stopped")
	ticker := time.NewTicker(registry.CheckInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			_ = c.doUpdateTTL() // regular: check-in
		}
	}
}
