package customer

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Transaction types counted into the customer's directional volumes.
var (
	inboundTypes  = map[string]bool{"collection": true, "collections": true, "topup": true}
	outboundTypes = map[string]bool{"transfer": true, "payout": true, "remittance": true, "withdrawal": true, "disbursements": true}
)

// flagThreshold is the decision score above which a customer gains a flag.
const flagThreshold = 75

// Updater applies decision outcomes to a customer's running risk state.
// Updates for the same customer serialize on a striped lock table, so
// concurrent events cannot interleave the read-modify-write and memory
// stays fixed regardless of how many customers the process sees.
type Updater struct {
	repo  domain.Repository
	locks [64]sync.Mutex
}

// NewUpdater creates a risk-state updater.
func NewUpdater(repo domain.Repository) *Updater {
	return &Updater{repo: repo}
}

// Apply folds one decision into the customer's counters, volumes and
// dynamic score, reclassifies the risk level, and persists the result.
func (u *Updater) Apply(ctx context.Context, tenantID string, c *domain.Customer, ev *domain.Event, score int) error {
	lock := u.lock(tenantID + "/" + c.ID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	c.TotalTransactions++
	c.LastSeen = &now

	amount := ev.Amount()
	switch txType := ev.TransactionType(); {
	case inboundTypes[txType]:
		c.TotalInboundVolume += amount
	case outboundTypes[txType]:
		c.TotalOutboundVolume += amount
	}

	if score > flagThreshold {
		c.TotalFlags++
	}

	// Running mean over all observed transactions.
	n := float64(c.TotalTransactions)
	c.DynamicRiskScore = (c.DynamicRiskScore*(n-1) + float64(score)) / n

	c.RiskLevel = domain.ClassifyRisk(c.EffectiveScore())

	return u.repo.UpdateCustomerRiskState(ctx, tenantID, c)
}

func (u *Updater) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &u.locks[h.Sum32()%uint32(len(u.locks))]
}
