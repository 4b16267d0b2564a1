package fetch

import "sync"

// SessionPool hands each worker its own Session and keeps the rotated
// replacement a Fetch returns. Sessions are never shared between
// workers; the pool only serializes the map access.
type SessionPool struct {
	client *Client
	mu     sync.Mutex
	byID   map[string]*Session
}

// NewSessionPool creates a pool minting sessions from client.
func NewSessionPool(client *Client) *SessionPool {
	return &SessionPool{client: client, byID: make(map[string]*Session)}
}

// Get returns the worker's current session, minting one on first use.
func (p *SessionPool) Get(workerID string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.byID[workerID]
	if !ok {
		sess = p.client.NewSession()
		p.byID[workerID] = sess
	}
	return sess
}

// Put stores the session to reuse on the worker's next task.
func (p *SessionPool) Put(workerID string, sess *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[workerID] = sess
}
