package engine

// UsageLimits carries the usage ceilings of a promotion or combo as read
// from the catalog. Nil limits are unbounded.
type UsageLimits struct {
	UsageLimit       *int
	PerSaleLineLimit *int
	UsageCount       int
}

// CanAddLine runs both usage checks for a new line of the given entity:
// the global lifetime cap (cantidad_usos vs limite_usos) and the
// per-sale line cap (existing lines vs limite_usos_por_venta). Both run
// at line-creation time only; quantity changes on an existing line are
// governed by the quantity band instead.
func CanAddLine(entityID string, existingLines int, limits UsageLimits) error {
	if limits.UsageLimit != nil && limits.UsageCount >= *limits.UsageLimit {
		return &GlobalUsageError{EntityID: entityID}
	}
	if limits.PerSaleLineLimit != nil && existingLines >= *limits.PerSaleLineLimit {
		return &LineLimitError{EntityID: entityID, Limit: *limits.PerSaleLineLimit}
	}
	return nil
}
