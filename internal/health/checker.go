package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/metrics"
)

// Probe returns nil when the dependency is reachable.
type Probe func(ctx context.Context) error

type dependency struct {
	name  string
	probe Probe
}

// Alert is posted to the monitoring webhook when a dependency changes state.
type Alert struct {
	Dependency string    `json:"dependency"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Checker struct {
	client     *http.Client
	interval   time.Duration
	webhookURL string
	logger     logger.Logger

	mu     sync.RWMutex
	deps   []dependency
	status map[string]bool

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewChecker(interval time.Duration, webhookURL string, log logger.Logger) *Checker {
	return &Checker{
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		interval:   interval,
		webhookURL: webhookURL,
		logger:     log,
		status:     make(map[string]bool),
		stopChan:   make(chan struct{}),
	}
}

func (c *Checker) Add(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps = append(c.deps, dependency{name: name, probe: probe})
}

// Start probes once immediately, then every interval until Stop.
func (c *Checker) Start() {
	c.CheckAll()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CheckAll()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// Status returns the last known state of every probed dependency.
func (c *Checker) Status() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.status))
	for k, v := range c.status {
		out[k] = v
	}
	return out
}

func (c *Checker) CheckAll() {
	c.mu.RLock()
	deps := append([]dependency(nil), c.deps...)
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, dep := range deps {
		wg.Add(1)
		go func(d dependency) {
			defer wg.Done()
			c.checkSingle(d)
		}(dep)
	}
	wg.Wait()
}

func (c *Checker) checkSingle(d dependency) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := d.probe(ctx)
	alive := err == nil

	if alive {
		metrics.DependencyUp.WithLabelValues(d.name).Set(1)
	} else {
		metrics.DependencyUp.WithLabelValues(d.name).Set(0)
	}

	c.mu.Lock()
	prev, seen := c.status[d.name]
	c.status[d.name] = alive
	c.mu.Unlock()

	// первый успешный пробег не считается переходом
	if seen && prev == alive || !seen && alive {
		return
	}

	alert := Alert{Dependency: d.name, Status: "up", Timestamp: time.Now().UTC()}
	if alive {
		c.logger.Infof("Dependency %s is back up", d.name)
	} else {
		alert.Status = "down"
		alert.Error = err.Error()
		c.logger.Errorf("Dependency %s is down: %v", d.name, err)
	}

	if err := c.notify(alert); err != nil {
		c.logger.Warnf("Failed to notify monitoring webhook: %v", err)
	}
}

func (c *Checker) notify(alert Alert) error {
	if c.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with %d", resp.StatusCode)
	}
	return nil
}
