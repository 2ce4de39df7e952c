// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

//go:build integration

package auth_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/auth/postgres"
)

// newService wires the real postgres repositories behind the auth service.
func newService(ttl time.Duration) *auth.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewServiceWithLogger(
		postgres.NewUserRepository(pool),
		postgres.NewSessionRepository(pool),
		auth.NewArgon2idHasher(),
		ttl,
		logger,
	)
	Expect(err).NotTo(HaveOccurred())
	return svc
}

// uniqueName returns a name that no other spec has used, inside the
// 3-20 character limit.
func uniqueName(prefix string) string {
	id := ulid.Make().String()
	name := fmt.Sprintf("%s-%s", prefix, id[len(id)-10:])
	if len(name) > auth.MaxNameLength {
		name = name[:auth.MaxNameLength]
	}
	return name
}

var _ = Describe("Authentication flow", func() {
	var (
		ctx context.Context
		svc *auth.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = newService(time.Hour)
	})

	Describe("Sign-up", func() {
		It("registers a new user", func() {
			name := uniqueName("alice")
			user, err := svc.SignUp(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Name).To(Equal(name))
			Expect(user.PasswordHash).To(HavePrefix("$argon2id$"))
		})

		It("rejects a duplicate name", func() {
			name := uniqueName("bob")
			_, err := svc.SignUp(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.SignUp(ctx, name, "other-pass99")
			Expect(err).To(MatchError(ContainSubstring("already taken")))
		})

		It("lets exactly one concurrent sign-up win", func() {
			const attempts = 8
			name := uniqueName("race")

			var wg sync.WaitGroup
			errs := make([]error, attempts)
			for i := range attempts {
				wg.Add(1)
				go func(idx int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, errs[idx] = svc.SignUp(ctx, name, "s3cret-pass")
				}(i)
			}
			wg.Wait()

			winners := 0
			for _, err := range errs {
				if err == nil {
					winners++
				} else {
					Expect(err).To(MatchError(ContainSubstring("already taken")))
				}
			}
			Expect(winners).To(Equal(1))
		})
	})

	Describe("Login and sessions", func() {
		It("round-trips login, authenticate, and logout", func() {
			name := uniqueName("carol")
			_, err := svc.SignUp(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())

			session, token, err := svc.Login(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(HaveLen(64))
			Expect(session.UserName).To(Equal(name))

			resolved, err := svc.Authenticate(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved.ID).To(Equal(session.ID))
			Expect(resolved.UserName).To(Equal(name))

			Expect(svc.Logout(ctx, token)).To(Succeed())

			_, err = svc.Authenticate(ctx, token)
			Expect(err).To(HaveOccurred())
		})

		It("rejects a wrong password without leaking the difference to unknown users", func() {
			name := uniqueName("dave")
			_, err := svc.SignUp(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())

			_, _, err = svc.Login(ctx, name, "wrong-pass")
			Expect(err).To(MatchError(ContainSubstring("incorrect password")))

			_, _, err = svc.Login(ctx, uniqueName("ghost"), "whatever")
			Expect(err).To(MatchError(ContainSubstring("user not found")))
		})

		It("expires sessions and sweeps them", func() {
			shortSvc := newService(50 * time.Millisecond)

			name := uniqueName("eve")
			_, err := shortSvc.SignUp(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())

			_, token, err := shortSvc.Login(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() error {
				_, err := shortSvc.Authenticate(ctx, token)
				return err
			}).WithTimeout(2 * time.Second).Should(HaveOccurred())

			// Another short-lived session, left expired for the sweeper.
			_, _, err = shortSvc.Login(ctx, name, "s3cret-pass")
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(100 * time.Millisecond)

			deleted, err := shortSvc.SweepExpired(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeNumerically(">=", 1))
		})
	})
})
