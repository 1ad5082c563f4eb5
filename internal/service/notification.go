package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"carpool/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRequestSubmitted  NotificationType = "REQUEST_SUBMITTED"
	NotificationRequestApproved   NotificationType = "REQUEST_APPROVED"
	NotificationRequestRejected   NotificationType = "REQUEST_REJECTED"
	NotificationRideStarted       NotificationType = "RIDE_STARTED"
	NotificationLegCompleted      NotificationType = "LEG_COMPLETED"
	NotificationRideCompleted     NotificationType = "RIDE_COMPLETED"
	NotificationRideCancelled     NotificationType = "RIDE_CANCELLED"
	NotificationRequestCancelled  NotificationType = "REQUEST_CANCELLED"
	NotificationRefundIssued      NotificationType = "REFUND_ISSUED"
	NotificationPenaltyCharged    NotificationType = "PENALTY_CHARGED"
)

// Notification represents a notification to be sent. Delivery (SMS, push)
// is an external collaborator; failure to notify never blocks or reverses
// a transition.
type Notification struct {
	Type        NotificationType
	RecipientID string
	Title       string
	Message     string
	Data        map[string]interface{}
	CreatedAt   time.Time
}

// NotificationService fans out state-transition notifications.
type NotificationService struct {
	// In a real system, this would have:
	// - SMS client (Twilio)
	// - Push notification client (FCM, APNS)
	// - WebSocket connections for real-time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotifyRequestApproved notifies the passenger their request was approved.
func (s *NotificationService) NotifyRequestApproved(ctx context.Context, req *domain.RideRequest) error {
	return s.send(ctx, Notification{
		Type:        NotificationRequestApproved,
		RecipientID: req.PassengerID,
		Title:       "Request Approved",
		Message:     "The driver approved your seat request.",
		Data: map[string]interface{}{
			"request_id": req.ID,
			"ride_id":    req.RideID,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRequestRejected notifies the passenger their request was rejected.
func (s *NotificationService) NotifyRequestRejected(ctx context.Context, req *domain.RideRequest) error {
	return s.send(ctx, Notification{
		Type:        NotificationRequestRejected,
		RecipientID: req.PassengerID,
		Title:       "Request Rejected",
		Message:     "The driver rejected your seat request. Your hold will be released.",
		Data: map[string]interface{}{
			"request_id": req.ID,
			"ride_id":    req.RideID,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRideStarted notifies all approved passengers that the ride started.
func (s *NotificationService) NotifyRideStarted(ctx context.Context, ride *domain.Ride, passengerIDs []string) error {
	for _, passengerID := range passengerIDs {
		_ = s.send(ctx, Notification{
			Type:        NotificationRideStarted,
			RecipientID: passengerID,
			Title:       "Ride Started",
			Message:     "Pickup confirmed. Your ride is underway.",
			Data: map[string]interface{}{
				"ride_id":    ride.ID,
				"started_at": ride.StartedAt,
			},
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// NotifyLegCompleted notifies driver and passenger that a passenger's leg
// settled.
func (s *NotificationService) NotifyLegCompleted(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) error {
	_ = s.send(ctx, Notification{
		Type:        NotificationLegCompleted,
		RecipientID: req.PassengerID,
		Title:       "Drop-off Confirmed",
		Message:     fmt.Sprintf("Payment of $%.2f captured for your ride.", ride.Price),
		Data: map[string]interface{}{
			"request_id": req.ID,
			"ride_id":    ride.ID,
		},
		CreatedAt: time.Now(),
	})
	return s.send(ctx, Notification{
		Type:        NotificationLegCompleted,
		RecipientID: ride.DriverID,
		Title:       "Passenger Completed",
		Message:     fmt.Sprintf("Payout of $%.2f on the way.", req.PayoutAmount),
		Data: map[string]interface{}{
			"request_id": req.ID,
			"ride_id":    ride.ID,
			"payout":     req.PayoutAmount,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRideCompleted notifies the driver that every leg has settled.
func (s *NotificationService) NotifyRideCompleted(ctx context.Context, ride *domain.Ride) error {
	return s.send(ctx, Notification{
		Type:        NotificationRideCompleted,
		RecipientID: ride.DriverID,
		Title:       "Ride Completed",
		Message:     "All passengers confirmed drop-off. The ride is settled.",
		Data: map[string]interface{}{
			"ride_id":      ride.ID,
			"completed_at": ride.CompletedAt,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRideCancelled notifies every affected passenger of a cancellation.
func (s *NotificationService) NotifyRideCancelled(ctx context.Context, ride *domain.Ride, passengerIDs []string) error {
	for _, passengerID := range passengerIDs {
		_ = s.send(ctx, Notification{
			Type:        NotificationRideCancelled,
			RecipientID: passengerID,
			Title:       "Ride Cancelled",
			Message:     "The driver cancelled the ride. Your payment will be refunded in full.",
			Data: map[string]interface{}{
				"ride_id": ride.ID,
			},
			CreatedAt: time.Now(),
		})
	}
	return nil
}

// NotifyRequestCancelled notifies the driver that a passenger dropped out.
func (s *NotificationService) NotifyRequestCancelled(ctx context.Context, ride *domain.Ride, req *domain.RideRequest) error {
	return s.send(ctx, Notification{
		Type:        NotificationRequestCancelled,
		RecipientID: ride.DriverID,
		Title:       "Passenger Cancelled",
		Message:     "A passenger left the ride. The seat is open again.",
		Data: map[string]interface{}{
			"request_id": req.ID,
			"ride_id":    ride.ID,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyRefundIssued notifies the passenger their money is back.
func (s *NotificationService) NotifyRefundIssued(ctx context.Context, req *domain.RideRequest) error {
	return s.send(ctx, Notification{
		Type:        NotificationRefundIssued,
		RecipientID: req.PassengerID,
		Title:       "Refund Issued",
		Message:     "Your payment hold has been released.",
		Data: map[string]interface{}{
			"request_id": req.ID,
		},
		CreatedAt: time.Now(),
	})
}

// NotifyPenaltyCharged discloses a cancellation penalty to the user.
func (s *NotificationService) NotifyPenaltyCharged(ctx context.Context, userID string, amount float64, strikeCount int) error {
	return s.send(ctx, Notification{
		Type:        NotificationPenaltyCharged,
		RecipientID: userID,
		Title:       "Cancellation Penalty",
		Message:     fmt.Sprintf("A $%.2f late-cancellation fee was charged. Strikes this month: %d.", amount, strikeCount),
		Data: map[string]interface{}{
			"amount":  amount,
			"strikes": strikeCount,
		},
		CreatedAt: time.Now(),
	})
}

// send delivers a notification (mock implementation).
func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	// A delivery layer would persist the notification and fan it out over
	// SMS or sockets. The engine only emits.
	log.Printf("[NOTIFICATION] Type=%s, Recipient=%s, Title=%s, Message=%s",
		notification.Type, notification.RecipientID, notification.Title, notification.Message)

	return nil
}
