package alias_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/devserve/pkg/alias"
)

var _ = Describe("Resolver", func() {
	var (
		root     string
		resolver *alias.Resolver
	)

	BeforeEach(func() {
		root = filepath.Join(string(filepath.Separator), "project")

		var err error
		resolver, err = alias.New(map[string]string{
			"@":           filepath.Join(root, "src"),
			"@components": filepath.Join(root, "src", "components"),
			"~":           filepath.Join(root, "node_modules"),
		}, 16)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("rejects relative targets", func() {
			_, err := alias.New(map[string]string{"@": "src"}, 0)

			Expect(err).To(MatchError(ContainSubstring("is not absolute")))
		})

		It("rejects empty keys", func() {
			_, err := alias.New(map[string]string{"": "/src"}, 0)

			Expect(err).To(HaveOccurred())
		})

		It("orders entries longest key first", func() {
			keys := []string{}
			for _, e := range resolver.Entries() {
				keys = append(keys, e.Key)
			}

			Expect(keys).To(Equal([]string{"@components", "@", "~"}))
		})
	})

	Describe("Resolve", func() {
		It("resolves the bare key to the target directory", func() {
			path, ok := resolver.Resolve("@")

			Expect(ok).To(BeTrue())
			Expect(path).To(Equal(filepath.Join(root, "src")))
		})

		It("joins the remainder onto the target", func() {
			path, ok := resolver.Resolve("@/views/Home.vue")

			Expect(ok).To(BeTrue())
			Expect(path).To(Equal(filepath.Join(root, "src", "views", "Home.vue")))
		})

		It("prefers the longer key", func() {
			path, ok := resolver.Resolve("@components/Button.vue")

			Expect(ok).To(BeTrue())
			Expect(path).To(Equal(filepath.Join(root, "src", "components", "Button.vue")))
		})

		It("does not match a key that is only a string prefix", func() {
			_, ok := resolver.Resolve("@vue/runtime-core")

			Expect(ok).To(BeFalse())
		})

		It("leaves unaliased specifiers alone", func() {
			_, ok := resolver.Resolve("./local.js")

			Expect(ok).To(BeFalse())
		})

		It("returns the same answer from the cache", func() {
			first, _ := resolver.Resolve("@/main.js")
			second, ok := resolver.Resolve("@/main.js")

			Expect(ok).To(BeTrue())
			Expect(second).To(Equal(first))
		})
	})

	Describe("Within", func() {
		It("accepts paths under the target", func() {
			entry, ok := resolver.Match("@/main.js")
			Expect(ok).To(BeTrue())

			path, _ := resolver.Resolve("@/main.js")
			Expect(alias.Within(entry, path)).To(BeTrue())
		})

		It("rejects paths that climb out of the target", func() {
			entry, _ := resolver.Match("@/../../etc/passwd")
			path, _ := resolver.Resolve("@/../../etc/passwd")

			Expect(alias.Within(entry, path)).To(BeFalse())
		})
	})
})
