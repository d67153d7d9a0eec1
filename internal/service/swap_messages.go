package service

import (
	"fmt"

	"bookswap/internal/models"
)

// greetingFor is the opening message a requester sends with a new request.
func greetingFor(t models.RequestType, title string) string {
	if t == models.RequestBuy {
		return fmt.Sprintf(`👋 Hi! I'm interested in buying your book "%s". Could you please let me know more about its condition and availability? Thanks!`, title)
	}
	return fmt.Sprintf(`👋 I'm interested in swapping for your book "%s".`, title)
}

// statusMessageFor is the message the owner sends after a status change.
func statusMessageFor(action models.SwapAction, title string) string {
	switch action {
	case models.ActionAccept:
		return fmt.Sprintf(`🎉 Great news! I've accepted your swap request for "%s". Let's arrange the exchange!`, title)
	case models.ActionReject:
		return fmt.Sprintf(`❌ I've declined the swap request for "%s".`, title)
	case models.ActionShip:
		return fmt.Sprintf(`📦 I've shipped your book "%s"! It should arrive in 2-3 days.`, title)
	case models.ActionDeliver:
		return fmt.Sprintf(`✅ The book "%s" has been marked as delivered. Enjoy reading!`, title)
	}
	return ""
}
