package service

import (
	"context"

	"github.com/wricardo/groupcart/group/catalog"
	"github.com/wricardo/groupcart/group/session"
)

// view builds the decorated read model. Catalog data is looked up fresh on
// every call and never written back into the session.
func (s *Service) view(ctx context.Context, doc *session.Session) *SessionView {
	v := &SessionView{
		Code:          doc.Code,
		HostID:        doc.HostID,
		RestaurantRef: doc.RestaurantRef,
		Status:        doc.Status,
		FinalOrderRef: doc.FinalOrderRef,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		ExpiresAt:     doc.CreatedAt.Add(s.ttl),
		Version:       doc.Version,
		Participants:  make([]ParticipantView, 0, len(doc.Participants)),
	}

	for _, p := range doc.Participants {
		pv := ParticipantView{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AvatarRef:   p.AvatarRef,
			Status:      p.Status,
			IsHost:      p.UserID == doc.HostID,
			JoinedAt:    p.JoinedAt,
			Items:       make([]ItemView, 0, len(p.Items)),
		}
		for _, it := range p.Items {
			iv := s.decorate(ctx, doc.RestaurantRef, it)
			pv.Items = append(pv.Items, iv)
			pv.SubtotalCents += iv.LineTotalCents

			if p.Status != session.ParticipantActive {
				continue
			}
			v.Checkout.LineCount++
			v.Checkout.ItemCount += it.Quantity
			v.Checkout.SubtotalCents += iv.LineTotalCents
			if iv.Product == nil && it.UnitPriceSnapshot == nil {
				v.Checkout.UnpricedLines++
			}
		}
		if p.Status == session.ParticipantActive {
			v.Checkout.ParticipantCount++
		}
		v.Participants = append(v.Participants, pv)
	}
	return v
}

// decorate prices a line from the catalog when possible, else from the
// client's snapshot.
func (s *Service) decorate(ctx context.Context, restaurantRef string, it session.CartItem) ItemView {
	iv := ItemView{CartItem: it}

	var unit int64
	if it.UnitPriceSnapshot != nil {
		unit = *it.UnitPriceSnapshot
	}
	if s.catalog != nil {
		if info, ok := s.catalog.Lookup(ctx, restaurantRef, it.ProductRef, it.VariantRef); ok {
			product := info
			iv.Product = &product
			unit = info.PriceCents
		}
	}
	iv.LineTotalCents = unit * int64(it.Quantity)
	return iv
}

var _ Catalog = (*catalog.Manager)(nil)
