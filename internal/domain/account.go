package domain

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleDelivery Role = "delivery"
	RoleAdmin    Role = "admin"
)

type ApprovalStatus string

const (
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalUnderReview ApprovalStatus = "under_review"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
	ApprovalSuspended   ApprovalStatus = "suspended"
)

type BuyerProfile struct {
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
}

type SellerProfile struct {
	ShopName            string         `json:"shop_name"`
	HeadquartersAddress string         `json:"headquarters_address"`
	BusinessDescription string         `json:"business_description,omitempty"`
	Status              ApprovalStatus `json:"status"`
}

type DeliveryProfile struct {
	VehicleType   string         `json:"vehicle_type"`
	VehicleNumber string         `json:"vehicle_number"`
	DeliveryArea  string         `json:"delivery_area"`
	ContactNumber string         `json:"contact_number"`
	Status        ApprovalStatus `json:"status"`
}

// Account is the shared identity of every marketplace user. Exactly one of
// the profile fields is set, matching Role; admins carry none.
type Account struct {
	ID       string           `json:"id"`
	Email    string           `json:"email"`
	Name     string           `json:"name"`
	Role     Role             `json:"role"`
	IsActive bool             `json:"is_active"`
	Buyer    *BuyerProfile    `json:"buyer,omitempty"`
	Seller   *SellerProfile   `json:"seller,omitempty"`
	Delivery *DeliveryProfile `json:"delivery,omitempty"`
}

// AccountSummary is the display subset embedded in order views.
type AccountSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{ID: a.ID, Name: a.Name, Email: a.Email}
}

// DecodeProfile fills the profile variant selected by a.Role from raw JSON.
func (a *Account) DecodeProfile(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}

	var target any
	switch a.Role {
	case RoleBuyer:
		a.Buyer = &BuyerProfile{}
		target = a.Buyer
	case RoleSeller:
		a.Seller = &SellerProfile{}
		target = a.Seller
	case RoleDelivery:
		a.Delivery = &DeliveryProfile{}
		target = a.Delivery
	case RoleAdmin:
		return nil
	default:
		return fmt.Errorf("unknown account role %q", a.Role)
	}

	return json.Unmarshal(raw, target)
}

// EncodeProfile returns the JSON of the profile variant matching a.Role.
func (a *Account) EncodeProfile() ([]byte, error) {
	switch a.Role {
	case RoleBuyer:
		return json.Marshal(a.Buyer)
	case RoleSeller:
		return json.Marshal(a.Seller)
	case RoleDelivery:
		return json.Marshal(a.Delivery)
	}
	return []byte("{}"), nil
}
