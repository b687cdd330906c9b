package service

import (
	"strings"
	"unicode/utf8"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/errors"
	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/models"
)

const maxIdentifierLength = 128

// ValidateUserID checks the user identifier every operation is scoped by.
func ValidateUserID(userID string) error {
	return validateIdentifier("user_id", userID)
}

// ValidateReference checks an order reference supplied by a caller.
func ValidateReference(ref string) error {
	return validateIdentifier("ref", ref)
}

func validateIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(field, field+" is required")
	}
	if utf8.RuneCountInString(value) > maxIdentifierLength {
		return errors.NewValidationError(field, field+" is too long")
	}
	if strings.ContainsAny(value, "/?#") {
		return errors.NewValidationError(field, field+" contains invalid characters")
	}
	return nil
}

// ValidateSnapshot rejects payment snapshots that cannot describe a payment.
func ValidateSnapshot(snap *models.PaymentSnapshot) error {
	if snap.AmountMinor < 0 {
		return errors.NewValidationError("amountMinor", "amount cannot be negative")
	}
	if snap.Reference != "" {
		if err := ValidateReference(snap.Reference); err != nil {
			return err
		}
	}
	if snap.AmountMinor == 0 && len(snap.Items) == 0 && snap.Treatment == "" {
		return errors.NewValidationError("items", "a payment needs an amount, a treatment or items")
	}
	return nil
}
