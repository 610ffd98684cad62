// Package catalog manages the reference records around change requests:
// facilities, assets, work orders and standard links.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/notify"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

// Document kinds used as DocumentStore buckets.
const (
	KindFacility  = "facilities"
	KindAsset     = "assets"
	KindWorkOrder = "work_orders"
	KindStandard  = "standards"
)

// MOCLinker is the part of the MOC service work orders need. *moc.Service
// satisfies it.
type MOCLinker interface {
	Exists(ctx context.Context, id string) (bool, error)
	RecordWorkOrder(ctx context.Context, id string, actor moc.Actor, workOrderID, title string) (moc.Request, error)
}

var _ MOCLinker = (*moc.Service)(nil)

// Auditor records global audit entries. *audit.Ledger satisfies it.
type Auditor interface {
	Append(ctx context.Context, targetID string, entry audit.Entry) (audit.Entry, error)
}

// Notifier receives fire-and-forget notifications. *notify.Hub satisfies it.
type Notifier interface {
	Notify(n notify.Notification)
}

// Catalog is the CRUD service for reference records.
type Catalog struct {
	facilities collection[Facility]
	assets     collection[Asset]
	workOrders collection[WorkOrder]
	standards  collection[StandardLink]

	mocs     MOCLinker
	auditor  Auditor
	notifier Notifier
	now      func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

func WithMOCs(m MOCLinker) Option { return func(c *Catalog) { c.mocs = m } }

func WithAuditor(a Auditor) Option { return func(c *Catalog) { c.auditor = a } }

func WithNotifier(n Notifier) Option { return func(c *Catalog) { c.notifier = n } }

func WithClock(fn func() time.Time) Option {
	return func(c *Catalog) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New builds a catalog over docs.
func New(docs DocumentStore, opts ...Option) (*Catalog, error) {
	if docs == nil {
		return nil, errors.New("catalog document store is required")
	}
	c := &Catalog{
		facilities: collection[Facility]{kind: KindFacility, prefix: "FAC", docs: docs, id: func(f *Facility) *string { return &f.ID }},
		assets:     collection[Asset]{kind: KindAsset, prefix: "ASSET", docs: docs, id: func(a *Asset) *string { return &a.ID }},
		workOrders: collection[WorkOrder]{kind: KindWorkOrder, prefix: "WO", docs: docs, id: func(w *WorkOrder) *string { return &w.ID }},
		standards:  collection[StandardLink]{kind: KindStandard, prefix: "STD", docs: docs, id: func(s *StandardLink) *string { return &s.ID }},
		notifier:   notify.Discard{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notify.Discard{}
	}
	return c, nil
}

// Facilities

func (c *Catalog) FacilityExists(ctx context.Context, id string) (bool, error) {
	return c.facilities.exists(ctx, id)
}

func (c *Catalog) GetFacility(ctx context.Context, id string) (Facility, error) {
	return c.facilities.get(ctx, id)
}

func (c *Catalog) ListFacilities(ctx context.Context) ([]Facility, error) {
	return c.facilities.list(ctx)
}

func (c *Catalog) CreateFacility(ctx context.Context, f Facility, actor audit.Actor) (Facility, error) {
	f, err := normalizeFacility(f)
	if err != nil {
		return Facility{}, err
	}
	if f, err = c.facilities.insert(ctx, f); err != nil {
		return Facility{}, err
	}
	c.audit(ctx, f.ID, actor, KindFacility, audit.ActionWrite, "facility created: "+f.Name, nil)
	return f, nil
}

func (c *Catalog) UpdateFacility(ctx context.Context, f Facility, actor audit.Actor) (Facility, error) {
	f, err := normalizeFacility(f)
	if err != nil {
		return Facility{}, err
	}
	prev, err := c.facilities.replace(ctx, f)
	if err != nil {
		return Facility{}, err
	}
	c.audit(ctx, f.ID, actor, KindFacility, audit.ActionWrite, "facility updated", diff(prev, f))
	return f, nil
}

// DeleteFacility refuses while assets are still installed at the facility.
func (c *Catalog) DeleteFacility(ctx context.Context, id string, actor audit.Actor) error {
	assets, err := c.assets.list(ctx)
	if err != nil {
		return err
	}
	for _, a := range assets {
		if a.FacilityID == strings.TrimSpace(id) {
			return fmt.Errorf("%w: facility %s still has asset %s", apperr.ErrConflict, id, a.ID)
		}
	}
	prev, err := c.facilities.remove(ctx, id)
	if err != nil {
		return err
	}
	c.audit(ctx, prev.ID, actor, KindFacility, audit.ActionDelete, "facility deleted: "+prev.Name, nil)
	return nil
}

// Assets

func (c *Catalog) GetAsset(ctx context.Context, id string) (Asset, error) {
	return c.assets.get(ctx, id)
}

// ListAssets returns every asset, or only those of facilityID when set.
func (c *Catalog) ListAssets(ctx context.Context, facilityID string) ([]Asset, error) {
	all, err := c.assets.list(ctx)
	if err != nil || facilityID == "" {
		return all, err
	}
	out := all[:0]
	for _, a := range all {
		if a.FacilityID == facilityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *Catalog) CreateAsset(ctx context.Context, a Asset, actor audit.Actor) (Asset, error) {
	a, err := c.normalizeAsset(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	if a, err = c.assets.insert(ctx, a); err != nil {
		return Asset{}, err
	}
	c.audit(ctx, a.ID, actor, KindAsset, audit.ActionWrite, "asset created: "+a.Tag, nil)
	return a, nil
}

func (c *Catalog) UpdateAsset(ctx context.Context, a Asset, actor audit.Actor) (Asset, error) {
	a, err := c.normalizeAsset(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	prev, err := c.assets.replace(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	c.audit(ctx, a.ID, actor, KindAsset, audit.ActionWrite, "asset updated", diff(prev, a))
	return a, nil
}

func (c *Catalog) DeleteAsset(ctx context.Context, id string, actor audit.Actor) error {
	prev, err := c.assets.remove(ctx, id)
	if err != nil {
		return err
	}
	c.audit(ctx, prev.ID, actor, KindAsset, audit.ActionDelete, "asset deleted: "+prev.Tag, nil)
	return nil
}

// Work orders

func (c *Catalog) GetWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	return c.workOrders.get(ctx, id)
}

// ListWorkOrders returns work orders, optionally only those raised against mocID.
func (c *Catalog) ListWorkOrders(ctx context.Context, mocID string) ([]WorkOrder, error) {
	all, err := c.workOrders.list(ctx)
	if err != nil || mocID == "" {
		return all, err
	}
	out := all[:0]
	for _, w := range all {
		if w.MOCID == mocID {
			out = append(out, w)
		}
	}
	return out, nil
}

// CreateWorkOrder stores w and, when it references an MOC, notes it on that
// MOC's history.
func (c *Catalog) CreateWorkOrder(ctx context.Context, w WorkOrder, actor audit.Actor) (WorkOrder, error) {
	w, err := c.normalizeWorkOrder(ctx, w)
	if err != nil {
		return WorkOrder{}, err
	}
	w.CreatedAt = c.now().UTC()
	if w, err = c.workOrders.insert(ctx, w); err != nil {
		return WorkOrder{}, err
	}
	if w.MOCID != "" && c.mocs != nil {
		if _, err := c.mocs.RecordWorkOrder(ctx, w.MOCID, actor, w.ID, w.Title); err != nil {
			if _, rmErr := c.workOrders.remove(ctx, w.ID); rmErr != nil {
				obs.Logger().Error("work order left without MOC history entry",
					zap.String("moc_id", w.MOCID), zap.String("work_order_id", w.ID), zap.Error(rmErr))
			}
			return WorkOrder{}, fmt.Errorf("link work order to MOC %s: %w", w.MOCID, err)
		}
	}
	c.audit(ctx, w.ID, actor, KindWorkOrder, audit.ActionWorkOrder, "work order created: "+w.Title, nil)
	msg := fmt.Sprintf("%s assigned to %s, due %s", w.ID, w.AssignedTo, w.DueDate)
	if w.NotificationEmail != "" {
		msg += " (notify " + w.NotificationEmail + ")"
	}
	c.notifier.Notify(notify.Notification{Title: "Work order created", Message: msg, Type: notify.LevelInfo})
	return w, nil
}

func (c *Catalog) UpdateWorkOrder(ctx context.Context, w WorkOrder, actor audit.Actor) (WorkOrder, error) {
	w, err := c.normalizeWorkOrder(ctx, w)
	if err != nil {
		return WorkOrder{}, err
	}
	prev, err := c.workOrders.get(ctx, w.ID)
	if err != nil {
		return WorkOrder{}, err
	}
	w.CreatedAt = prev.CreatedAt
	if _, err := c.workOrders.replace(ctx, w); err != nil {
		return WorkOrder{}, err
	}
	c.audit(ctx, w.ID, actor, KindWorkOrder, audit.ActionWrite, "work order updated", diff(prev, w))
	if prev.Status != w.Status && w.Status == WorkOrderCompleted {
		c.notifier.Notify(notify.Notification{Title: "Work order completed", Message: w.ID + ": " + w.Title, Type: notify.LevelSuccess})
	}
	return w, nil
}

func (c *Catalog) DeleteWorkOrder(ctx context.Context, id string, actor audit.Actor) error {
	prev, err := c.workOrders.remove(ctx, id)
	if err != nil {
		return err
	}
	c.audit(ctx, prev.ID, actor, KindWorkOrder, audit.ActionDelete, "work order deleted: "+prev.Title, nil)
	return nil
}

// Standards and links

func (c *Catalog) GetStandard(ctx context.Context, id string) (StandardLink, error) {
	return c.standards.get(ctx, id)
}

// ListStandards returns standard links, optionally filtered by category.
func (c *Catalog) ListStandards(ctx context.Context, category string) ([]StandardLink, error) {
	all, err := c.standards.list(ctx)
	if err != nil || category == "" {
		return all, err
	}
	out := all[:0]
	for _, s := range all {
		if strings.EqualFold(s.Category, category) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *Catalog) CreateStandard(ctx context.Context, s StandardLink, actor audit.Actor) (StandardLink, error) {
	s, err := normalizeStandard(s)
	if err != nil {
		return StandardLink{}, err
	}
	if s, err = c.standards.insert(ctx, s); err != nil {
		return StandardLink{}, err
	}
	c.audit(ctx, s.ID, actor, KindStandard, audit.ActionWrite, "standard created: "+s.Title, nil)
	c.notifier.Notify(notify.Notification{Title: "Standard synchronized", Message: s.Title, Type: notify.LevelSuccess})
	return s, nil
}

func (c *Catalog) UpdateStandard(ctx context.Context, s StandardLink, actor audit.Actor) (StandardLink, error) {
	s, err := normalizeStandard(s)
	if err != nil {
		return StandardLink{}, err
	}
	prev, err := c.standards.replace(ctx, s)
	if err != nil {
		return StandardLink{}, err
	}
	c.audit(ctx, s.ID, actor, KindStandard, audit.ActionWrite, "standard updated", diff(prev, s))
	return s, nil
}

func (c *Catalog) DeleteStandard(ctx context.Context, id string, actor audit.Actor) error {
	prev, err := c.standards.remove(ctx, id)
	if err != nil {
		return err
	}
	c.audit(ctx, prev.ID, actor, KindStandard, audit.ActionDelete, "standard deleted: "+prev.Title, nil)
	c.notifier.Notify(notify.Notification{Title: "Standard removed", Message: prev.Title, Type: notify.LevelWarning})
	return nil
}

// Validation

func normalizeFacility(f Facility) (Facility, error) {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	f.Location = strings.TrimSpace(f.Location)
	f.Type = strings.TrimSpace(f.Type)
	if f.Name == "" {
		return Facility{}, fmt.Errorf("%w: facility name is required", apperr.ErrValidation)
	}
	status, err := parseFacilityStatus(f.Status)
	if err != nil {
		return Facility{}, err
	}
	f.Status = status
	return f, nil
}

func (c *Catalog) normalizeAsset(ctx context.Context, a Asset) (Asset, error) {
	a.ID = strings.TrimSpace(a.ID)
	a.FacilityID = strings.TrimSpace(a.FacilityID)
	a.Tag = strings.ToUpper(strings.TrimSpace(a.Tag))
	a.Name = strings.TrimSpace(a.Name)
	a.Type = strings.TrimSpace(a.Type)
	a.Status = strings.TrimSpace(a.Status)
	switch {
	case a.Tag == "":
		return Asset{}, fmt.Errorf("%w: asset tag is required", apperr.ErrValidation)
	case a.Name == "":
		return Asset{}, fmt.Errorf("%w: asset name is required", apperr.ErrValidation)
	case a.FacilityID == "":
		return Asset{}, fmt.Errorf("%w: facility_id is required", apperr.ErrValidation)
	}
	ok, err := c.facilities.exists(ctx, a.FacilityID)
	if err != nil {
		return Asset{}, err
	}
	if !ok {
		return Asset{}, fmt.Errorf("%w: facility %s", apperr.ErrNotFound, a.FacilityID)
	}
	if a.Status == "" {
		a.Status = "operational"
	}
	return a, nil
}

func (c *Catalog) normalizeWorkOrder(ctx context.Context, w WorkOrder) (WorkOrder, error) {
	w.ID = strings.TrimSpace(w.ID)
	w.MOCID = strings.TrimSpace(w.MOCID)
	w.Title = strings.TrimSpace(w.Title)
	w.AssignedTo = strings.TrimSpace(w.AssignedTo)
	w.DueDate = strings.TrimSpace(w.DueDate)
	w.NotificationEmail = strings.TrimSpace(w.NotificationEmail)
	switch {
	case w.Title == "":
		return WorkOrder{}, fmt.Errorf("%w: work order title is required", apperr.ErrValidation)
	case w.AssignedTo == "":
		return WorkOrder{}, fmt.Errorf("%w: assigned_to is required", apperr.ErrValidation)
	}
	if _, err := time.Parse(DueDateLayout, w.DueDate); err != nil {
		return WorkOrder{}, fmt.Errorf("%w: due_date must be YYYY-MM-DD", apperr.ErrValidation)
	}
	if w.NotificationEmail != "" {
		if _, err := mail.ParseAddress(w.NotificationEmail); err != nil {
			return WorkOrder{}, fmt.Errorf("%w: invalid notification_email", apperr.ErrValidation)
		}
	}
	status, err := parseWorkOrderStatus(w.Status)
	if err != nil {
		return WorkOrder{}, err
	}
	w.Status = status
	if w.MOCID != "" && c.mocs != nil {
		ok, err := c.mocs.Exists(ctx, w.MOCID)
		if err != nil {
			return WorkOrder{}, fmt.Errorf("check MOC: %w", err)
		}
		if !ok {
			return WorkOrder{}, fmt.Errorf("%w: MOC %s", apperr.ErrNotFound, w.MOCID)
		}
	}
	return w, nil
}

func normalizeStandard(s StandardLink) (StandardLink, error) {
	s.ID = strings.TrimSpace(s.ID)
	s.Title = strings.TrimSpace(s.Title)
	s.URL = strings.TrimSpace(s.URL)
	s.Category = strings.TrimSpace(s.Category)
	s.Code = strings.TrimSpace(s.Code)
	s.Description = strings.TrimSpace(s.Description)
	if s.Title == "" {
		return StandardLink{}, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return StandardLink{}, fmt.Errorf("%w: url must be an absolute http(s) URL", apperr.ErrValidation)
		}
	}
	if s.Category == "" {
		s.Category = "standard"
	}
	return s, nil
}

func (c *Catalog) audit(ctx context.Context, target string, actor audit.Actor, resource string, action audit.Action, details string, changes []audit.Change) {
	if c.auditor == nil {
		return
	}
	entry := actor.Entry(resource, action, details)
	entry.Changes = changes
	if _, err := c.auditor.Append(ctx, target, entry); err != nil {
		obs.Logger().Warn("audit append failed", zap.String("target_id", target), zap.Error(err))
	}
}
