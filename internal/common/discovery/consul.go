package discovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
)

// ServiceRegistry Consul服务注册
type ServiceRegistry struct {
	client    *api.Client
	serviceID string
	service   string
	address   string
	port      int
	tags      []string
	check     *api.AgentServiceCheck
}

// NewServiceRegistry 创建服务注册器（HTTP 健康检查探测 /healthz）
func NewServiceRegistry(client *api.Client, serviceID, service, address string, port int, tags []string) *ServiceRegistry {
	return &ServiceRegistry{
		client:    client,
		serviceID: serviceID,
		service:   service,
		address:   address,
		port:      port,
		tags:      tags,
		check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", address, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}
}

// Register 注册服务
func (r *ServiceRegistry) Register() error {
	registration := &api.AgentServiceRegistration{
		ID:      r.serviceID,
		Name:    r.service,
		Tags:    r.tags,
		Address: r.address,
		Port:    r.port,
		Check:   r.check,
	}

	return r.client.Agent().ServiceRegister(registration)
}

// Deregister 注销服务
func (r *ServiceRegistry) Deregister() error {
	return r.client.Agent().ServiceDeregister(r.serviceID)
}

// Picker 从 Consul 健康实例中轮询选址（api-gateway 反向代理用）。
type Picker struct {
	client  *api.Client
	service string

	mu        sync.RWMutex
	addrs     []string
	next      int
	lastIndex uint64
}

// NewPicker 创建 Picker 并启动后台刷新。
func NewPicker(client *api.Client, service string) *Picker {
	p := &Picker{
		client:  client,
		service: service,
	}
	p.refresh()
	go p.watch()
	return p
}

// Pick 返回一个健康实例地址（host:port）；无可用实例时返回错误。
func (p *Picker) Pick() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.addrs) == 0 {
		return "", fmt.Errorf("no healthy instance for service %s", p.service)
	}
	addr := p.addrs[p.next%len(p.addrs)]
	p.next++
	return addr, nil
}

func (p *Picker) watch() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		p.refresh()
	}
}

func (p *Picker) refresh() {
	services, meta, err := p.client.Health().Service(p.service, "", true, &api.QueryOptions{
		WaitIndex: p.lastIndex,
	})
	if err != nil {
		return
	}
	p.lastIndex = meta.LastIndex

	addrs := make([]string, 0, len(services))
	for _, service := range services {
		addrs = append(addrs, fmt.Sprintf("%s:%d", service.Service.Address, service.Service.Port))
	}
	if len(addrs) == 0 {
		return
	}

	p.mu.Lock()
	p.addrs = addrs
	p.mu.Unlock()
}

// NewConsulClient 创建Consul客户端
func NewConsulClient(host string, port int) (*api.Client, error) {
	config := api.DefaultConfig()
	config.Address = fmt.Sprintf("%s:%d", host, port)
	return api.NewClient(config)
}
