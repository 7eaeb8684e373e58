package app

import (
	"context"
	"strings"

	"github.com/vsmclub/clubcore/internal/clock"
	"github.com/vsmclub/clubcore/internal/domain"
)

type AccountRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)
	CreateAccount(ctx context.Context, account domain.Account) error
	UpdateAccountActive(ctx context.Context, id string, active bool) error
}

// PasswordHasher is the one-way credential primitive. The core never sees
// a stored plaintext password.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// ProvisionService decides whether a requested account, with a requested
// role, may be created and by whom.
type ProvisionService struct {
	repo           AccountRepository
	hasher         PasswordHasher
	clock          clock.Clock
	allowedDomains []string
}

func NewProvisionService(repo AccountRepository, hasher PasswordHasher, clk clock.Clock, opts ...ProvisionServiceOption) *ProvisionService {
	svc := &ProvisionService{
		repo:   repo,
		hasher: hasher,
		clock:  clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ProvisionServiceOption func(*ProvisionService)

// WithAllowedEmailDomains restricts sign-up to emails whose domain matches
// one of the given suffixes. With no domains configured, any well-formed
// email is accepted.
func WithAllowedEmailDomains(domains ...string) ProvisionServiceOption {
	return func(s *ProvisionService) {
		s.allowedDomains = append(s.allowedDomains, domains...)
	}
}

type RegisterAccountInput struct {
	Name          string
	Email         string
	Password      string
	RequestedRole *domain.Role
}

// Register validates and authorizes the creation of a new account. The
// guards run in a fixed order and the first failing guard wins; nothing is
// written until every guard has passed. actor is nil for self-service
// sign-up.
func (s *ProvisionService) Register(ctx context.Context, in RegisterAccountInput, actor *domain.Account) (domain.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Name == "" {
		return domain.Account{}, domain.ErrNameRequired
	}
	if in.Password == "" {
		return domain.Account{}, domain.ErrPasswordRequired
	}
	if !s.emailAllowed(in.Email) {
		return domain.Account{}, domain.ErrInvalidEmailDomain
	}

	var result domain.Account
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetAccountByEmail(txCtx, in.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateEmail
		}

		role, err := resolveRole(in.RequestedRole, actor)
		if err != nil {
			return err
		}

		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return err
		}

		account := domain.Account{
			ID:           newID(),
			Name:         in.Name,
			Email:        in.Email,
			PasswordHash: hash,
			Role:         role,
			Active:       true,
			CreatedAt:    s.clock.Now(),
		}
		if err := s.repo.CreateAccount(txCtx, account); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return result.Sanitized(), nil
}

// resolveRole is the provisioning decision table: an explicit ordered
// guard list, kept flat on purpose since the rule set is small and closed.
func resolveRole(requested *domain.Role, actor *domain.Account) (domain.Role, error) {
	if actor == nil {
		if requested != nil {
			return "", domain.ErrRoleAssignmentNotPermitted
		}
		return domain.RoleUser, nil
	}
	if actor.Role == domain.RoleEditor {
		return "", domain.ErrEditorsCannotProvision
	}
	if actor.Role != domain.RoleAdmin && requested != nil {
		return "", domain.ErrOnlyAdminsAssignRoles
	}
	role := domain.RoleUser
	if requested != nil {
		role = *requested
	}
	if !role.Valid() {
		return "", domain.ErrInvalidRole
	}
	return role, nil
}

// SetActive flips an account's active flag. Deactivation is preferred over
// deletion; only admins may do either.
func (s *ProvisionService) SetActive(ctx context.Context, accountID string, active bool, actor domain.Account) (domain.Account, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.Account{}, domain.ErrNotAuthorized
	}

	var result domain.Account
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		account, err := s.repo.GetAccountByID(txCtx, accountID)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateAccountActive(txCtx, accountID, active); err != nil {
			return err
		}
		account.Active = active
		result = account
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return result.Sanitized(), nil
}

func (s *ProvisionService) emailAllowed(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if len(s.allowedDomains) == 0 {
		return true
	}
	emailDomain := email[at+1:]
	for _, d := range s.allowedDomains {
		d = strings.ToLower(strings.TrimPrefix(d, "@"))
		if emailDomain == d || strings.HasSuffix(emailDomain, "."+d) {
			return true
		}
	}
	return false
}
