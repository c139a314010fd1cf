package service

import (
	"context"
	"fmt"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/port"
)

var (
	errUserIDRequired = domain.NewError(domain.ErrInvalidInput, "userId is required")
	errInvalidUserID  = domain.NewError(domain.ErrInvalidInput, "Invalid userId")
	errUserNotFound   = domain.NewError(domain.ErrNotFound, "User not found")
	errUserHasOrders  = domain.NewError(domain.ErrConflict, "User has existing orders and cannot be deleted")
)

type UserService struct {
	users  port.UserRepository
	orders port.OrderRepository
}

func NewUserService(users port.UserRepository, orders port.OrderRepository) *UserService {
	return &UserService{users: users, orders: orders}
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if err := s.checkID(id); err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, errUserNotFound
	}
	return user, nil
}

func (s *UserService) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}

	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (s *UserService) RenameUser(ctx context.Context, id, newName string) (*domain.User, error) {
	if id == "" || newName == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "userId or new username are required")
	}
	if err := s.checkID(id); err != nil {
		return nil, err
	}

	user, err := s.users.RenameUser(ctx, id, newName)
	if err != nil {
		return nil, fmt.Errorf("rename user: %w", err)
	}
	if user == nil {
		return nil, domain.NewError(domain.ErrNotFound, "User not found or didn't update user successfully")
	}
	return user, nil
}

// DeleteUser refuses to remove a user that orders still reference. Orders are
// counted again after the delete and the user is put back if one was placed in
// between.
func (s *UserService) DeleteUser(ctx context.Context, id string) (*domain.User, error) {
	if err := s.checkID(id); err != nil {
		return nil, err
	}

	filter := domain.OrderFilter{UserID: id}
	n, err := s.orders.CountOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count user orders: %w", err)
	}
	if n > 0 {
		return nil, errUserHasOrders
	}

	user, err := s.users.DeleteUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if user == nil {
		return nil, domain.NewError(domain.ErrNotFound, "User not found or didn't delete user successfully")
	}

	n, err = s.orders.CountOrders(ctx, filter)
	if err == nil && n == 0 {
		return user, nil
	}
	if restoreErr := s.users.RestoreUser(context.WithoutCancel(ctx), *user); restoreErr != nil {
		return nil, fmt.Errorf("restore user %s: %w", user.ID, restoreErr)
	}
	if err != nil {
		return nil, fmt.Errorf("recount user orders: %w", err)
	}
	return nil, errUserHasOrders
}

func (s *UserService) checkID(id string) error {
	if id == "" {
		return errUserIDRequired
	}
	if !s.users.ValidID(id) {
		return errInvalidUserID
	}
	return nil
}
