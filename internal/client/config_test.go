package client_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mist-hpc/mist/internal/client"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("client config", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		GinkgoT().Setenv(client.TestRootDirEnvKey, root)
	})

	It("persists and parses a config with a credential", func() {
		expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
		cred := &client.Credential{Type: "Bearer", Token: "tok", ExpiresAt: expiry}
		Expect(client.WriteConfig("/home/alice/.mist/client.yaml", "http://localhost:3000", cred)).To(Succeed())

		_, err := os.Stat(filepath.Join(root, "home/alice/.mist/client.yaml"))
		Expect(err).To(BeNil())

		cfg, err := client.ParseConfigFile("/home/alice/.mist/client.yaml")
		Expect(err).To(BeNil())
		Expect(cfg.Service.Server).To(Equal("http://localhost:3000"))
		Expect(cfg.Credential).NotTo(BeNil())
		Expect(cfg.Credential.Token).To(Equal("tok"))
		Expect(cfg.Credential.ExpiresAt.Equal(expiry)).To(BeTrue())
	})

	It("aggregates every validation error", func() {
		cfg := client.NewDefault()
		cfg.Credential = &client.Credential{Type: "Basic"}

		err := cfg.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.Error()).To(ContainSubstring("no server found"))
		Expect(err.Error()).To(ContainSubstring(`invalid credential type "Basic"`))
		Expect(err.Error()).To(ContainSubstring("credential has no token"))
	})

	It("rejects a server without hostname", func() {
		cfg := client.NewDefault()
		cfg.Service.Server = "/relative"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("no hostname")))
	})

	It("fails on a missing file", func() {
		_, err := client.ParseConfigFile("/nowhere/client.yaml")
		Expect(err).To(MatchError(ContainSubstring("reading config")))
	})

	It("tells expired credentials apart", func() {
		now := time.Now()
		Expect((&client.Credential{ExpiresAt: now.Add(-time.Minute)}).Expired(now)).To(BeTrue())
		Expect((&client.Credential{ExpiresAt: now.Add(time.Minute)}).Expired(now)).To(BeFalse())
		Expect((&client.Credential{}).Expired(now)).To(BeFalse())
	})
})
