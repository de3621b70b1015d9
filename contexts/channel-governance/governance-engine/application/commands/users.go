package commands

import (
	"context"
	"errors"

	"votebot/contexts/channel-governance/governance-engine/domain/entities"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
)

// AddUser registers target with the requested privilege. The issuer must be
// a transport admin or hold stored ADMIN privilege.
func (e *Engine) AddUser(ctx context.Context, issuer string, target string, privilege entities.Privilege) error {
	e.logger.Info("add user processing started", e.attrs(ctx, "governance_add_user_started",
		"issuer", issuer,
		"target", target,
		"privilege", string(privilege),
	)...)
	if !privilege.Storable() {
		e.notify(ctx, issuer, "Unknown privilege, aborting...")
		return domainerrors.ErrUnknownPrivilege
	}
	if err := e.authorizeAdministration(ctx, issuer); err != nil {
		return err
	}
	identity, err := e.resolveTarget(ctx, issuer, target)
	if err != nil {
		return err
	}

	err = e.store.InsertUser(ctx, entities.User{
		Identity:    identity,
		DisplayName: target,
		Privilege:   privilege,
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrUserExists) {
			e.notify(ctx, issuer, "Couldn't add user %s (%s). Reason: %v", target, identity, err)
			e.logger.Warn("adding user failed", e.attrs(ctx, "governance_add_user_failed",
				"target", target,
				"identity", identity,
				"error", err.Error(),
			)...)
			return err
		}
		e.notify(ctx, issuer, "Couldn't add user %s (%s), contact the admin", target, identity)
		return e.storeFailure(ctx, "governance_add_user_store_failed", err, "identity", identity)
	}

	if privilege.IsActive() {
		e.activeUsers.Add(1)
	}
	e.logger.Info("user added", e.attrs(ctx, "governance_user_added",
		"identity", identity,
		"privilege", string(privilege),
		"active_users", e.ActiveUsers(),
	)...)
	e.notify(ctx, issuer, "Successfully added User %s (%s)", target, identity)
	return nil
}

// ModUser changes the stored privilege of target and requeries the
// active-user gauge, since a change can both grant and remove active status.
func (e *Engine) ModUser(ctx context.Context, issuer string, target string, privilege entities.Privilege) error {
	e.logger.Info("modify user processing started", e.attrs(ctx, "governance_mod_user_started",
		"issuer", issuer,
		"target", target,
		"privilege", string(privilege),
	)...)
	if !privilege.Storable() {
		e.notify(ctx, issuer, "Unknown privilege, aborting...")
		return domainerrors.ErrUnknownPrivilege
	}
	if err := e.authorizeAdministration(ctx, issuer); err != nil {
		return err
	}
	identity, err := e.resolveTarget(ctx, issuer, target)
	if err != nil {
		return err
	}

	if err := e.store.UpdatePrivilege(ctx, identity, privilege); err != nil {
		if errors.Is(err, domainerrors.ErrUserNotFound) {
			e.notify(ctx, issuer, "Couldn't modify user %s (%s). Reason: %v", target, identity, err)
			e.logger.Warn("modifying user failed", e.attrs(ctx, "governance_mod_user_failed",
				"target", target,
				"identity", identity,
				"error", err.Error(),
			)...)
			return err
		}
		e.notify(ctx, issuer, "Couldn't modify user %s (%s), contact the admin", target, identity)
		return e.storeFailure(ctx, "governance_mod_user_store_failed", err, "identity", identity)
	}

	// The gauge is best-effort; a failed requery keeps the previous value.
	_ = e.refreshActiveUsers(ctx)
	e.logger.Info("user modified", e.attrs(ctx, "governance_user_modified",
		"identity", identity,
		"privilege", string(privilege),
		"active_users", e.ActiveUsers(),
	)...)
	e.notify(ctx, issuer, "Successfully modified User %s", target)
	return nil
}

func (e *Engine) authorizeAdministration(ctx context.Context, issuer string) error {
	transportAdmin, err := e.transport.IsTransportAdmin(ctx, issuer)
	if err != nil {
		e.logger.Warn("transport admin lookup failed", e.attrs(ctx, "governance_transport_admin_lookup_failed",
			"issuer", issuer,
			"error", err.Error(),
		)...)
		transportAdmin = false
	}
	if transportAdmin {
		return nil
	}
	_, privilege, err := e.privilegeOf(ctx, issuer)
	if err != nil {
		e.notify(ctx, issuer, "Error checking permissions, contact the admin")
		return err
	}
	if privilege != entities.PrivilegeAdmin {
		e.logger.Info("user administration denied", e.attrs(ctx, "governance_user_admin_denied",
			"issuer", issuer,
			"privilege", string(privilege),
		)...)
		e.notify(ctx, issuer, "Insufficient permissions")
		return domainerrors.ErrUnauthorized
	}
	return nil
}

func (e *Engine) resolveTarget(ctx context.Context, issuer string, target string) (string, error) {
	identity, ok, err := e.transport.ResolveIdentity(ctx, target)
	if err != nil || !ok || identity == "" {
		attrs := []any{"target", target}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
		}
		e.logger.Info("target identity unresolved", e.attrs(ctx, "governance_target_identity_unresolved", attrs...)...)
		e.notify(ctx, issuer, "Couldn't query user's identity, aborting...")
		return "", domainerrors.ErrIdentityUnresolved
	}
	return identity, nil
}
