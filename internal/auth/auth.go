/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package auth is the login and row-level authorization glue sitting outside
the storage core. It never touches the KV substrate directly: it logs in
against whatever "users"-shaped collection the caller names, by going
through the engine's own CRUD path like any other client would.

Security model:
  - Passwords are hashed with bcrypt before they ever reach a record.
  - A successful login mints a JWT carrying the user id, email and the
    collection the user authenticated against.
  - Row-level authorization is a Predicate function evaluated by the HTTP
    layer against each candidate record, not by the engine itself — the
    engine has no notion of "who is asking".
  - A dummy bcrypt comparison runs on an unknown email to keep login
    timing independent of whether the account exists.
*/
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hivebase/hivebase/internal/engine"
	hbErrors "github.com/hivebase/hivebase/internal/errors"
)

// DefaultBcryptCost balances hashing latency against brute-force
// resistance for interactive logins.
const DefaultBcryptCost = 10

// PasswordLength is the default length for generated admin passwords.
const PasswordLength = 24

// passwordCharset excludes visually ambiguous characters (0, O, l, 1, I).
const passwordCharset = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789!@#$%^&*"

// GenerateSecurePassword returns a cryptographically random password drawn
// from passwordCharset.
func GenerateSecurePassword(length int) (string, error) {
	if length <= 0 {
		length = PasswordLength
	}
	out := make([]byte, length)
	charsetLen := big.NewInt(int64(len(passwordCharset)))
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("generate secure password: %w", err)
		}
		out[i] = passwordCharset[idx.Int64()]
	}
	return string(out), nil
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), DefaultBcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// dummyHash is compared against on an unknown-email login so the failure
// path costs the same bcrypt round-trip as a real mismatch.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), DefaultBcryptCost)

// VerifyPassword reports whether plaintext matches hash.
func VerifyPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Claims is the JWT payload minted on successful login.
type Claims struct {
	UserID     string `json:"sub"`
	Email      string `json:"email"`
	Collection string `json:"collection"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies login tokens and performs the login
// lookup against the engine.
type Authenticator struct {
	engine    *engine.Engine
	secret    []byte
	expiresIn time.Duration
}

func NewAuthenticator(eng *engine.Engine, secret string, expiresIn time.Duration) *Authenticator {
	return &Authenticator{engine: eng, secret: []byte(secret), expiresIn: expiresIn}
}

// Login verifies email/password against collection and returns a signed
// token plus the sanitized user record.
func (a *Authenticator) Login(collection, email, password string) (string, engine.Record, error) {
	result, err := a.engine.List(collection, engine.ListOptions{
		Filter:  map[string]interface{}{"email": email},
		PerPage: 1,
	})
	if err != nil {
		return "", nil, err
	}

	if len(result.Items) == 0 {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", nil, hbErrors.Forbidden("invalid credentials")
	}

	user := result.Items[0]
	id, _ := user["id"].(string)

	// The list result is sanitized (password stripped); re-fetch the raw
	// record to check the hash.
	raw, found, err := a.rawUser(collection, id)
	if err != nil {
		return "", nil, err
	}
	if !found {
		return "", nil, hbErrors.Forbidden("invalid credentials")
	}

	hash, _ := raw["password"].(string)
	if !VerifyPassword(hash, password) {
		return "", nil, hbErrors.Forbidden("invalid credentials")
	}

	token, err := a.issueToken(collection, id, email)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (a *Authenticator) rawUser(collection, id string) (engine.Record, bool, error) {
	rec, err := a.engine.GetRaw(collection, id)
	if err != nil {
		if hbErrors.Is(err, hbErrors.CategoryNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return rec, true, nil
}

func (a *Authenticator) issueToken(collection, userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     userID,
		Email:      email,
		Collection: collection,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken validates a bearer token and returns its claims.
func (a *Authenticator) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, hbErrors.Forbidden("invalid or expired token")
	}
	return claims, nil
}

// Bootstrap seeds the _superusers collection with an admin account the
// first time it is empty, generating a random password when one isn't
// supplied through the environment. It returns the generated password, or
// an empty string when an account already existed.
func Bootstrap(eng *engine.Engine, adminEmail, adminPassword string) (string, error) {
	existing, err := eng.List("_superusers", engine.ListOptions{PerPage: 1})
	if err != nil {
		return "", err
	}
	if len(existing.Items) > 0 {
		return "", nil
	}

	generated := false
	if adminPassword == "" {
		pw, err := GenerateSecurePassword(PasswordLength)
		if err != nil {
			return "", err
		}
		adminPassword = pw
		generated = true
	}

	hash, err := HashPassword(adminPassword)
	if err != nil {
		return "", err
	}

	if adminEmail == "" {
		adminEmail = "admin@hivebase.local"
	}

	if _, err := eng.Create("_superusers", engine.Record{
		"email":    adminEmail,
		"password": hash,
	}); err != nil {
		return "", err
	}

	if generated {
		return adminPassword, nil
	}
	return "", nil
}
