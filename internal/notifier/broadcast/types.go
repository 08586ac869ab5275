package broadcast

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

type Config struct {
	RatePerSec int
}

// Message is what every recipient receives. A non-empty PhotoPath sends a
// photo with Text as its caption.
type Message struct {
	Text      string
	PhotoPath string
	Options   *kit.SendOptions
}

// Outcome summarizes one broadcast. Delivered+len(Failed) always equals the
// number of recipients.
type Outcome struct {
	ID        string
	Delivered int
	Failed    []int64
}

type JobStatus struct {
	ID        string
	Name      string
	Total     int
	Done      int
	Failed    int
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	adapter kit.Adapter
	log     logx.Logger

	limiter *rate.Limiter

	statusMu sync.RWMutex
	status   map[string]*JobStatus
	// statusMax/statusTTL bound in-memory status retention.
	statusMax int
	statusTTL time.Duration
}
