package auth_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/procurex/requisition-engine/internal/auth"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

type mockAuthRepository struct {
	passwordHash string
	userID       string
	user         *auth.User
	err          error
}

func (m *mockAuthRepository) GetPasswordForEmail(email string) (string, string, error) {
	if m.err != nil {
		return "", "", m.err
	}
	return m.passwordHash, m.userID, nil
}

func (m *mockAuthRepository) GetActiveUser(userID int64) (*auth.User, error) {
	if m.user == nil {
		return nil, auth.ErrUserInactive
	}
	return m.user, nil
}

var _ = Describe("AuthService", func() {
	const password = "correct horse battery staple"

	var (
		repo     *mockAuthRepository
		tokenGen *auth.JWTTokenGenerator
		service  *auth.Service
	)

	BeforeEach(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())

		repo = &mockAuthRepository{
			passwordHash: string(hash),
			userID:       "10",
			user:         &auth.User{ID: 10, Email: "dewi@acme.test", Name: "Dewi"},
		}
		tokenGen = auth.NewJWTTokenGenerator(
			"access-secret-for-tests-0123456789ab",
			"refresh-secret-for-tests-0123456789a",
		)
		service = auth.NewService(repo, tokenGen, bcrypt.MinCost)
	})

	Describe("Authenticate", func() {
		It("returns a token pair for valid credentials", func() {
			tokens, err := service.Authenticate(auth.LoginDTO{
				Email:    "dewi@acme.test",
				Password: password,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(tokens.AccessToken).ToNot(BeEmpty())
			Expect(tokens.RefreshToken).ToNot(BeEmpty())
			Expect(tokens.AccessToken).ToNot(Equal(tokens.RefreshToken))
		})

		It("rejects a wrong password", func() {
			_, err := service.Authenticate(auth.LoginDTO{
				Email:    "dewi@acme.test",
				Password: "nope",
			})
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})

		It("reports an unknown email identically to a wrong password", func() {
			repo.err = errors.New("record not found")

			_, err := service.Authenticate(auth.LoginDTO{
				Email:    "nobody@acme.test",
				Password: password,
			})
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
		})

		It("rejects a malformed login payload", func() {
			_, err := service.Authenticate(auth.LoginDTO{Email: "", Password: ""})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("token validation", func() {
		It("round-trips an access token", func() {
			token, err := tokenGen.GenerateAccessToken("10", "dewi@acme.test")
			Expect(err).NotTo(HaveOccurred())

			claims, err := service.ValidateAccessToken(token)
			Expect(err).ToNot(HaveOccurred())
			Expect(claims.UserID).To(Equal("10"))
			Expect(claims.Email).To(Equal("dewi@acme.test"))
		})

		It("rejects an expired token", func() {
			tokenGen.AccessTokenTTL = -time.Minute
			token, err := tokenGen.GenerateAccessToken("10", "dewi@acme.test")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ValidateAccessToken(token)
			Expect(errors.Is(err, auth.ErrTokenExpired)).To(BeTrue())
		})

		It("rejects garbage", func() {
			_, err := service.ValidateAccessToken("not.a.token")
			Expect(errors.Is(err, auth.ErrInvalidToken)).To(BeTrue())
		})

		It("rejects a token signed with a different secret", func() {
			other := auth.NewJWTTokenGenerator(
				"some-other-access-secret-0123456789a",
				"some-other-refresh-secret-012345678a",
			)
			token, err := other.GenerateAccessToken("10", "dewi@acme.test")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ValidateAccessToken(token)
			Expect(errors.Is(err, auth.ErrInvalidToken)).To(BeTrue())
		})
	})

	Describe("RefreshTokens", func() {
		It("issues a fresh pair from a valid refresh token", func() {
			refresh, err := tokenGen.GenerateRefreshToken("10", "dewi@acme.test")
			Expect(err).NotTo(HaveOccurred())

			tokens, err := service.RefreshTokens(refresh)
			Expect(err).ToNot(HaveOccurred())
			Expect(tokens.AccessToken).ToNot(BeEmpty())
			Expect(tokens.RefreshToken).ToNot(BeEmpty())

			claims, err := service.ValidateAccessToken(tokens.AccessToken)
			Expect(err).ToNot(HaveOccurred())
			Expect(claims.UserID).To(Equal("10"))
		})

		It("refuses an expired refresh token", func() {
			tokenGen.RefreshTokenTTL = -time.Minute
			refresh, err := tokenGen.GenerateRefreshToken("10", "dewi@acme.test")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.RefreshTokens(refresh)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("HashPassword", func() {
		It("produces a hash that verifies against the original", func() {
			hash, err := service.HashPassword("s3cret")
			Expect(err).ToNot(HaveOccurred())
			Expect(auth.VerifyPassword(hash, "s3cret")).To(Succeed())
			Expect(auth.VerifyPassword(hash, "other")).NotTo(Succeed())
		})
	})
})
