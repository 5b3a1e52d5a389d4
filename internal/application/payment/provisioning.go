package payment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/labfix/backend/internal/domain/identity"
	"github.com/labfix/backend/internal/domain/lab"
)

// EnsureCustomer returns the provider customer id of l, creating it on first
// use. Provisioning runs under a per-lab lock and stores the id with a
// conditional update; when another writer wins, its id is returned and ours
// is logged as an orphan.
func (s *Service) EnsureCustomer(ctx context.Context, l *lab.Lab, manager *identity.Profile) (string, error) {
	if l.HasCustomerID() {
		return l.CustomerID(), nil
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("billing:customer:lab:%d", l.ID), s.cfg.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire customer provisioning lock: %w", err)
	}
	defer release()

	current, err := s.labs.FindByID(ctx, l.ID)
	if err != nil {
		return "", err
	}
	if current.HasCustomerID() {
		*l = *current
		return current.CustomerID(), nil
	}

	start := time.Now()
	customerID, err := s.gateway.CreateCustomer(ctx, current.Name, manager.Email)
	s.metrics.ProviderCall(ctx, "create_customer", time.Since(start), err)
	if err != nil {
		return "", gatewayError(err, "create customer for lab %d", l.ID)
	}
	if !lab.IsCustomerID(&customerID) {
		return "", gatewayError(fmt.Errorf("malformed customer id %q", customerID), "create customer for lab %d", l.ID)
	}

	stored, err := s.labs.SetBillCustomerIDIfAbsent(ctx, l.ID, customerID)
	if err != nil {
		return "", err
	}
	if !stored {
		winner, err := s.labs.FindByID(ctx, l.ID)
		if err != nil {
			return "", err
		}
		s.logger.Warn("Customer provisioned concurrently, using stored id",
			zap.Int64("lab_id", l.ID),
			zap.String("customer_id", winner.CustomerID()),
			zap.String("orphan_customer_id", customerID))
		*l = *winner
		return winner.CustomerID(), nil
	}

	s.logger.Info("Provisioned billing customer",
		zap.Int64("lab_id", l.ID),
		zap.String("customer_id", customerID))
	l.BillCustomerID = &customerID
	return customerID, nil
}

// EnsureVendor returns the provider vendor id of a technician, creating it
// on first use under the same rules as EnsureCustomer.
func (s *Service) EnsureVendor(ctx context.Context, tech *identity.Technician, profile *identity.Profile) (string, error) {
	if tech.HasVendorID() {
		return tech.VendorID(), nil
	}

	release, err := s.locker.Acquire(ctx, "billing:vendor:technician:"+tech.ProfileID.String(), s.cfg.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire vendor provisioning lock: %w", err)
	}
	defer release()

	current, err := s.technicians.FindByProfileID(ctx, tech.ProfileID)
	if err != nil {
		return "", err
	}
	if current.HasVendorID() {
		*tech = *current
		return current.VendorID(), nil
	}

	start := time.Now()
	vendorID, err := s.gateway.CreateVendor(ctx, profile.DisplayName(), profile.Email)
	s.metrics.ProviderCall(ctx, "create_vendor", time.Since(start), err)
	if err != nil {
		return "", gatewayError(err, "create vendor for technician %s", tech.ProfileID)
	}
	if !identity.IsVendorID(&vendorID) {
		return "", gatewayError(fmt.Errorf("malformed vendor id %q", vendorID), "create vendor for technician %s", tech.ProfileID)
	}

	stored, err := s.technicians.SetBillVendorIDIfAbsent(ctx, tech.ProfileID, vendorID)
	if err != nil {
		return "", err
	}
	if !stored {
		winner, err := s.technicians.FindByProfileID(ctx, tech.ProfileID)
		if err != nil {
			return "", err
		}
		s.logger.Warn("Vendor provisioned concurrently, using stored id",
			zap.String("technician_id", tech.ProfileID.String()),
			zap.String("vendor_id", winner.VendorID()),
			zap.String("orphan_vendor_id", vendorID))
		*tech = *winner
		return winner.VendorID(), nil
	}

	s.logger.Info("Provisioned billing vendor",
		zap.String("technician_id", tech.ProfileID.String()),
		zap.String("vendor_id", vendorID))
	tech.BillVendorID = &vendorID
	return vendorID, nil
}
