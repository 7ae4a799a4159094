package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/antibyte/simplimath/pkg/logger"
)

// RateLimitInfo speichert Rate-Limiting-Informationen pro IP
type RateLimitInfo struct {
	requests  int
	lastReset time.Time
}

// ClientManager verwaltet Client-Verbindungen mit Session-IDs
type ClientManager struct {
	clients      map[string]*Client        // sessionID -> Client
	rateLimits   map[string]*RateLimitInfo // ipAddress -> RateLimitInfo
	maxClients   int
	maxPerMinute int
	mu           sync.RWMutex
}

// NewClientManager creates a registry. Zero limits mean unlimited.
func NewClientManager(maxClients, maxPerMinute int) *ClientManager {
	return &ClientManager{
		clients:      make(map[string]*Client),
		rateLimits:   make(map[string]*RateLimitInfo),
		maxClients:   maxClients,
		maxPerMinute: maxPerMinute,
	}
}

// AddClient registers client unless the server is full.
func (cm *ClientManager) AddClient(sessionID string, client *Client) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.maxClients > 0 && len(cm.clients) >= cm.maxClients {
		return fmt.Errorf("server full: %d clients connected", len(cm.clients))
	}
	cm.clients[sessionID] = client
	logger.TerminalDebug("Client added for session %s", sessionID)
	return nil
}

// RemoveClient entfernt einen Client
func (cm *ClientManager) RemoveClient(sessionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, exists := cm.clients[sessionID]; exists {
		delete(cm.clients, sessionID)
		logger.TerminalDebug("Client removed for session %s", sessionID)
	}
}

// GetClientCount returns the number of connected clients.
func (cm *ClientManager) GetClientCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// HasClient reports whether sessionID is connected.
func (cm *ClientManager) HasClient(sessionID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, exists := cm.clients[sessionID]
	return exists
}

// CheckRateLimit counts one message from ipAddress against the per-minute budget.
func (cm *ClientManager) CheckRateLimit(ipAddress string) error {
	if cm.maxPerMinute <= 0 {
		return nil
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	rateLimit, exists := cm.rateLimits[ipAddress]
	if !exists || now.Sub(rateLimit.lastReset) > time.Minute {
		rateLimit = &RateLimitInfo{lastReset: now}
		cm.rateLimits[ipAddress] = rateLimit
	}
	rateLimit.requests++
	if rateLimit.requests > cm.maxPerMinute {
		logger.TerminalWarn("Rate limit exceeded for IP %s: %d messages in last minute", ipAddress, rateLimit.requests)
		return fmt.Errorf("rate limit exceeded: too many messages from %s", ipAddress)
	}
	return nil
}
