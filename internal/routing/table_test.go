package routing_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/hostproxy/internal/routing"
)

var _ = Describe("Table", func() {
	var table *routing.Table

	BeforeEach(func() {
		var err error
		table, err = routing.Compile(strings.NewReader(multiConfig))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Compile", func() {
		It("should collect every rule in order", func() {
			Expect(table.Rules).To(HaveLen(2))
			Expect(table.Rules[0].Backend).To(Equal("api"))
			Expect(table.Rules[1].Hosts).To(Equal([]string{"www.example.com", "example.com"}))
		})

		It("should collect every backend with all servers", func() {
			Expect(table.Backends).To(HaveLen(2))
			Expect(table.Backends["api"].Servers).To(HaveLen(2))
			Expect(table.Declared).To(Equal([]string{"api", "web"}))
		})

		It("should count routed hosts", func() {
			Expect(table.Hosts()).To(Equal(3))
		})

		It("should list every routed destination once", func() {
			Expect(table.Destinations()).To(Equal([]string{"10.0.0.5:9000", "10.0.0.6:9000", "10.0.1.5:80"}))
		})

		It("should leave rules without a host condition out of the table", func() {
			t, err := routing.Compile(strings.NewReader(
				"frontend :80\nuse_backend static if { path_beg /static }\n" +
					"use_backend b1 if { req.hdr(host) -i api.example.com }\nuse_backend legacy if is_legacy\n" +
					"backend b1\nserver s1 10.0.0.5:9000\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Rules).To(HaveLen(1))
			Expect(t.Rules[0].Backend).To(Equal("b1"))
			Expect(t.Lookup("api.example.com").Destination).To(Equal("10.0.0.5:9000"))
		})

		It("should reject malformed rules", func() {
			_, err := routing.Compile(strings.NewReader("frontend :80\nuse_backend b1 if { }\n"))
			Expect(errors.Is(err, routing.ErrConfigSyntax)).To(BeTrue())
		})
	})

	Describe("Lookup", func() {
		DescribeTable("should agree with a host-scoped Parse",
			func(host string) {
				expected := parse(multiConfig, host)
				Expect(cmp.Diff(expected, table.Lookup(host))).To(BeEmpty())
			},
			Entry("api host", "api.example.com"),
			Entry("second host of a rule", "example.com"),
			Entry("www host", "www.example.com"),
			Entry("unknown host", "unknown.example.com"),
			Entry("empty host", ""),
		)

		It("should return the first server as destination", func() {
			Expect(table.Lookup("api.example.com").Destination).To(Equal("10.0.0.5:9000"))
		})
	})

	Describe("LoadTable", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "table-test-*")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.RemoveAll(tempDir)
		})

		It("should load and compile a routing file", func() {
			path := filepath.Join(tempDir, "haproxy.cfg")
			Expect(os.WriteFile(path, []byte(sampleConfig), 0644)).To(Succeed())

			t, err := routing.LoadTable(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Lookup("api.example.com").Destination).To(Equal("10.0.0.5:9000"))
		})

		It("should fail for a missing file", func() {
			_, err := routing.LoadTable(filepath.Join(tempDir, "nope.cfg"))
			Expect(errors.Is(err, routing.ErrConfigUnreadable)).To(BeTrue())
		})

		It("should fail for a file without a frontend", func() {
			path := filepath.Join(tempDir, "haproxy.cfg")
			Expect(os.WriteFile(path, []byte("backend b1\nserver s1 10.0.0.5:9000\n"), 0644)).To(Succeed())

			_, err := routing.LoadTable(path)
			Expect(errors.Is(err, routing.ErrConfigInvalid)).To(BeTrue())
		})
	})
})
