package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
)

type lease struct {
	holder    string
	expiresAt time.Time
}

type suppressionKey struct {
	kind     model.SourceKind
	sourceID string
}

// MemoryStore implements every repository interface in process. Values are
// copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.Mutex

	campaigns    map[int64]*model.Campaign
	calls        map[int64]*model.CampaignCall
	callsByRef   map[string]int64
	leases       map[int64]lease
	contacts     map[string][]*model.Contact
	suppressions map[suppressionKey]map[int64]bool

	nextCampaignID int64
	nextCallID     int64
	nextContactID  int64

	// Now is the lease clock; defaults to time.Now.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:    make(map[int64]*model.Campaign),
		calls:        make(map[int64]*model.CampaignCall),
		callsByRef:   make(map[string]int64),
		leases:       make(map[int64]lease),
		contacts:     make(map[string][]*model.Contact),
		suppressions: make(map[suppressionKey]map[int64]bool),
		Now:          time.Now,
	}
}

// ====================== Campaigns ======================

func (s *MemoryStore) Create(ctx context.Context, c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCampaignID++
	now := time.Now().UTC()
	c.ID = s.nextCampaignID
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.StatusIdle
	}
	s.campaigns[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status model.ExecutionStatus) ([]*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Campaign{}
	for _, c := range s.campaigns {
		if c.Status == status {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id int64, mutate CampaignMutation) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateLocked(id, mutate)
}

func (s *MemoryStore) updateLocked(id int64, mutate CampaignMutation) (*model.Campaign, error) {
	cur, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.campaigns[id] = next
	return next.Clone(), nil
}

// ====================== Calls ======================

func (s *MemoryStore) CreateAttempt(ctx context.Context, call *model.CampaignCall, reserve CampaignMutation) (bool, *model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.campaigns[call.CampaignID]
	if !ok {
		return false, nil, appErrors.NewCampaignNotFound(call.CampaignID)
	}
	next := cur.Clone()

	var existing *model.CampaignCall
	for _, e := range s.calls {
		if e.CampaignID == call.CampaignID && e.ContactKey == call.ContactKey {
			existing = e
			break
		}
	}
	if existing == nil && reserve != nil {
		if err := reserve(next); err != nil {
			return false, nil, err
		}
	}
	if call.ContactKey > next.LastContactKey {
		next.LastContactKey = call.ContactKey
	}
	now := time.Now().UTC()
	next.UpdatedAt = now
	s.campaigns[next.ID] = next

	if existing != nil {
		*call = *existing.Clone()
		return false, next.Clone(), nil
	}

	s.nextCallID++
	call.ID = s.nextCallID
	call.CreatedAt = now
	call.UpdatedAt = now
	if call.Status == "" {
		call.Status = model.CallPending
	}
	s.calls[call.ID] = call.Clone()
	return true, next.Clone(), nil
}

func (s *MemoryStore) MarkDispatched(ctx context.Context, callID int64, callRef, sessionRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[callID]
	if !ok {
		return fmt.Errorf("call %d not found", callID)
	}
	call.CallRef = &callRef
	call.SessionRef = &sessionRef
	call.UpdatedAt = time.Now().UTC()
	s.callsByRef[callRef] = callID
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, callID int64, notes string, release CampaignMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[callID]
	if !ok || call.Status != model.CallPending {
		return nil
	}
	if release != nil {
		if _, err := s.updateLocked(call.CampaignID, release); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	call.Status = model.CallFailed
	call.Notes = notes
	call.CompletedAt = &now
	call.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ApplyEvent(ctx context.Context, callRef string, mutate CallEventMutation) (*model.CampaignCall, *model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.callsByRef[callRef]
	if !ok {
		return nil, nil, appErrors.NewCallNotFound(callRef)
	}
	cur := s.calls[id]
	c, ok := s.campaigns[cur.CampaignID]
	if !ok {
		return nil, nil, appErrors.NewCampaignNotFound(cur.CampaignID)
	}

	nextCall := cur.Clone()
	nextCampaign := c.Clone()
	if err := mutate(nextCall, nextCampaign); err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	nextCall.UpdatedAt = now
	nextCampaign.UpdatedAt = now
	s.calls[id] = nextCall
	s.campaigns[c.ID] = nextCampaign
	return nextCall.Clone(), nextCampaign.Clone(), nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, campaignID int64) (map[model.CallStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[model.CallStatus]int)
	for _, call := range s.calls {
		if call.CampaignID == campaignID {
			counts[call.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) ListByCampaign(ctx context.Context, campaignID int64, limit, offset int) ([]*model.CampaignCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := []*model.CampaignCall{}
	for _, call := range s.calls {
		if call.CampaignID == campaignID {
			all = append(all, call.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ContactKey < all[j].ContactKey })

	if offset >= len(all) {
		return []*model.CampaignCall{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// ====================== Leases ======================

func (s *MemoryStore) TryAcquire(ctx context.Context, campaignID int64, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if l, ok := s.leases[campaignID]; ok && l.holder != holder && now.Before(l.expiresAt) {
		return false, nil
	}
	s.leases[campaignID] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, campaignID int64, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[campaignID]; ok && l.holder == holder {
		delete(s.leases, campaignID)
	}
	return nil
}

// ====================== Contacts ======================

func (s *MemoryStore) ListExists(ctx context.Context, listID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.contacts[listID]) > 0, nil
}

func (s *MemoryStore) Next(ctx context.Context, listID string, afterKey int64) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.contacts[listID] {
		if c.Key > afterKey && !c.DoNotCall {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Count(ctx context.Context, listID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.contacts[listID]), nil
}

func (s *MemoryStore) CountAfter(ctx context.Context, listID string, afterKey int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.contacts[listID] {
		if c.Key > afterKey && !c.DoNotCall {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkDoNotCall(ctx context.Context, listID string, key int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.contacts[listID] {
		if c.Key == key {
			c.DoNotCall = true
		}
	}
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, c *model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextContactID++
	c.Key = s.nextContactID
	cp := *c
	s.contacts[c.ListID] = append(s.contacts[c.ListID], &cp)
	return nil
}

// ====================== Suppressions ======================

func (s *MemoryStore) Suppress(ctx context.Context, kind model.SourceKind, sourceID string, key int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := suppressionKey{kind: kind, sourceID: sourceID}
	if s.suppressions[k] == nil {
		s.suppressions[k] = make(map[int64]bool)
	}
	s.suppressions[k][key] = true
	return nil
}

func (s *MemoryStore) Suppressed(ctx context.Context, kind model.SourceKind, sourceID string) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]bool)
	for key := range s.suppressions[suppressionKey{kind: kind, sourceID: sourceID}] {
		out[key] = true
	}
	return out, nil
}

var (
	_ CampaignRepositoryInterface     = (*MemoryStore)(nil)
	_ CampaignCallRepositoryInterface = (*MemoryStore)(nil)
	_ LeaseRepositoryInterface        = (*MemoryStore)(nil)
	_ ContactRepositoryInterface      = (*MemoryStore)(nil)
	_ SuppressionRepositoryInterface  = (*MemoryStore)(nil)
)
