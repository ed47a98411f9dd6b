package service

import (
	"context"
	"fmt"
	"log/slog"

	"heirloom/internal/audit"
	"heirloom/internal/heir"
	"heirloom/internal/notify"
	"heirloom/internal/vault"
	"heirloom/pkg/domain"
	"heirloom/pkg/requestcontext"
)

// Dispatcher executes the category-specific disposition for every vault a
// triggered user owns. Vaults are processed independently: one vault's
// failure lands in its result and the sweep continues. Only an inability to
// enumerate vaults is returned as an error.
//
// Re-dispatch is safe. Deletion of an absent vault is a no-op success, the
// other three categories check their durable marker before acting.
type Dispatcher struct {
	vaults vault.Store
	heirs  heir.Store
	sink   *notify.Sink
	logger *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func NewDispatcher(vaults vault.Store, heirs heir.Store, sink *notify.Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		vaults: vaults,
		heirs:  heirs,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchUser runs the disposition for every vault the user owns and
// returns one result per vault.
func (d *Dispatcher) DispatchUser(ctx context.Context, userID domain.UserID) ([]vault.ActionResult, error) {
	vaults, err := d.vaults.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list vaults for user %s: %w", userID, err)
	}

	results := make([]vault.ActionResult, 0, len(vaults))
	for _, v := range vaults {
		result := d.dispatchVault(ctx, v)
		results = append(results, result)
		d.recordResult(ctx, v.UserID, result)
	}
	return results, nil
}

// dispatchVault branches on the closed category set. An unrecognized
// category is a data error: reported in the result, never a panic.
func (d *Dispatcher) dispatchVault(ctx context.Context, v *vault.Vault) vault.ActionResult {
	switch v.Category {
	case domain.VaultCategoryDelete:
		return d.deleteVault(ctx, v)
	case domain.VaultCategoryShare:
		return d.shareVault(ctx, v)
	case domain.VaultCategoryHandle:
		return d.markTrustedContact(ctx, v)
	case domain.VaultCategorySignOff:
		return d.queueSignOff(ctx, v)
	default:
		return d.result(ctx, v, "dispatch", fmt.Errorf("unknown vault category %q", v.Category))
	}
}

// deleteVault removes items before the container so an interrupted delete
// never strands orphaned items.
func (d *Dispatcher) deleteVault(ctx context.Context, v *vault.Vault) vault.ActionResult {
	deleted, err := d.vaults.DeleteItems(ctx, v.ID)
	if err != nil {
		return d.result(ctx, v, "delete", fmt.Errorf("delete items: %w", err))
	}
	if err := d.vaults.Delete(ctx, v.ID); err != nil {
		return d.result(ctx, v, "delete", fmt.Errorf("delete vault: %w", err))
	}
	d.logger.InfoContext(ctx, "vault deleted",
		"vault_id", v.ID,
		"items_deleted", deleted,
	)
	return d.result(ctx, v, "delete", nil)
}

// shareVault flips is_shared and grants every pending access row scoped to
// the vault, across heirs.
func (d *Dispatcher) shareVault(ctx context.Context, v *vault.Vault) vault.ActionResult {
	flipped, err := d.vaults.MarkShared(ctx, v.ID)
	if err != nil {
		return d.result(ctx, v, "share", fmt.Errorf("mark shared: %w", err))
	}
	if !flipped {
		return d.skipped(ctx, v, "share")
	}

	pending, err := d.heirs.ListPendingAccessByVault(ctx, v.ID)
	if err != nil {
		return d.result(ctx, v, "share", fmt.Errorf("list pending access: %w", err))
	}
	now := requestcontext.Now(ctx)
	for _, a := range pending {
		if err := d.heirs.GrantAccess(ctx, a.ID, now); err != nil {
			return d.result(ctx, v, "share", fmt.Errorf("grant access %s: %w", a.ID, err))
		}
	}
	return d.result(ctx, v, "share", nil)
}

// markTrustedContact stamps the durable handoff marker. Delivery of the
// contact notification is handed to the sink and never fails the action.
func (d *Dispatcher) markTrustedContact(ctx context.Context, v *vault.Vault) vault.ActionResult {
	if v.DeathSettings.TrustedContactNotified {
		return d.skipped(ctx, v, "mark_trusted_contact")
	}

	now := requestcontext.Now(ctx)
	settings := v.DeathSettings
	settings.TrustedContactNotified = true
	settings.TrustedContactNotifiedAt = &now
	if err := d.vaults.UpdateDeathSettings(ctx, v.ID, settings); err != nil {
		return d.result(ctx, v, "mark_trusted_contact", fmt.Errorf("stamp trusted contact marker: %w", err))
	}

	if settings.TrustedContactEmail != "" {
		d.sink.Notify(ctx, notify.Notification{
			Kind:      notify.KindTrustedContact,
			Recipient: settings.TrustedContactEmail,
			Subject:   "You have been asked to handle a vault",
			Body: fmt.Sprintf("The owner of vault %q designated you as trusted contact. "+
				"Please sign in to review the vault contents.", v.Name),
		})
	}
	return d.result(ctx, v, "mark_trusted_contact", nil)
}

// queueSignOff stamps the operator-queue marker for manual handling.
func (d *Dispatcher) queueSignOff(ctx context.Context, v *vault.Vault) vault.ActionResult {
	if v.DeathSettings.SignOffTaskCreated {
		return d.skipped(ctx, v, "queue_signoff")
	}

	now := requestcontext.Now(ctx)
	settings := v.DeathSettings
	settings.SignOffTaskCreated = true
	settings.SignOffTaskStatus = "pending"
	settings.SignOffQueuedAt = &now
	if err := d.vaults.UpdateDeathSettings(ctx, v.ID, settings); err != nil {
		return d.result(ctx, v, "queue_signoff", fmt.Errorf("stamp signoff marker: %w", err))
	}

	if settings.SignOffOperatorEmail != "" {
		d.sink.Notify(ctx, notify.Notification{
			Kind:      notify.KindSignOffOperator,
			Recipient: settings.SignOffOperatorEmail,
			Subject:   "Vault sign-off task queued",
			Body:      fmt.Sprintf("Vault %q requires a manual sign-off before disposition.", v.Name),
		})
	}
	return d.result(ctx, v, "queue_signoff", nil)
}

func (d *Dispatcher) result(ctx context.Context, v *vault.Vault, action string, err error) vault.ActionResult {
	r := vault.ActionResult{
		VaultID:   v.ID,
		Category:  v.Category,
		Action:    action,
		Success:   err == nil,
		Timestamp: requestcontext.Now(ctx),
	}
	if err != nil {
		r.Error = err.Error()
		d.logger.WarnContext(ctx, "vault disposition failed",
			"vault_id", v.ID,
			"category", v.Category,
			"error", err,
		)
	}
	return r
}

func (d *Dispatcher) skipped(ctx context.Context, v *vault.Vault, action string) vault.ActionResult {
	return vault.ActionResult{
		VaultID:   v.ID,
		Category:  v.Category,
		Action:    action,
		Success:   true,
		Skipped:   true,
		Timestamp: requestcontext.Now(ctx),
	}
}

func (d *Dispatcher) recordResult(ctx context.Context, userID domain.UserID, r vault.ActionResult) {
	action := resultAction(r)
	d.sink.Record(ctx, audit.Event{
		Timestamp: r.Timestamp,
		UserID:    userID,
		Resource:  "vault/" + r.VaultID.String(),
		Action:    action,
		Risk:      action.Risk(),
		Reason:    r.Error,
		Detail:    fmt.Sprintf("category=%s action=%s", r.Category, r.Action),
		RequestID: requestcontext.RequestID(ctx),
	})
}

func resultAction(r vault.ActionResult) audit.Action {
	switch {
	case !r.Success:
		return audit.ActionVaultActionFailed
	case r.Skipped:
		return audit.ActionVaultActionSkipped
	}
	switch r.Category {
	case domain.VaultCategoryDelete:
		return audit.ActionVaultDeleted
	case domain.VaultCategoryShare:
		return audit.ActionVaultShared
	case domain.VaultCategoryHandle:
		return audit.ActionContactMarked
	case domain.VaultCategorySignOff:
		return audit.ActionSignOffQueued
	}
	return audit.ActionVaultActionSkipped
}
