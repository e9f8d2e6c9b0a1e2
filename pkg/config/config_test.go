package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/devserve/pkg/config"
)

const tomlConfig = `
plugins = ["vue"]

[resolve.alias]
"@" = "src"

[server.proxy]
"/api" = "http://localhost:8080"

[server.proxy."^/ws/.*"]
target = "http://localhost:9090"
changeOrigin = true
secure = false
rewrite = { from = "^/ws", to = "" }
headers = { X-Dev = "1" }
`

const jsoncConfig = `{
  // same declaration, JSON with comments
  "plugins": ["vue"],
  "resolve": { "alias": { "@": "src" } },
  "server": {
    "proxy": {
      "/api": "http://localhost:8080",
      "^/ws/.*": {
        "target": "http://localhost:9090",
        "changeOrigin": true,
        "secure": false,
        "rewrite": { "from": "^/ws", "to": "" },
        "headers": { "X-Dev": "1" },
      },
    },
  },
}`

const yamlConfig = `
plugins: [vue]
resolve:
  alias:
    "@": src
server:
  proxy:
    /api: http://localhost:8080
    ^/ws/.*:
      target: http://localhost:9090
      changeOrigin: true
      secure: false
      rewrite:
        from: ^/ws
        to: ""
      headers:
        X-Dev: "1"
`

var _ = Describe("Config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "devserve-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		// macOS temp dirs live behind a symlink
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeFile := func(name, content string) string {
		path := filepath.Join(tmpDir, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	Describe("Default", func() {
		It("activates the vue plugin", func() {
			cfg := config.Default(tmpDir)

			Expect(cfg.Plugins).To(Equal([]string{"vue"}))
		})

		It("proxies /api to localhost:8080 in the string form", func() {
			cfg := config.Default(tmpDir)

			rule, ok := cfg.Server.Proxy["/api"]
			Expect(ok).To(BeTrue())
			Expect(rule.Target).To(Equal("http://localhost:8080"))
			Expect(rule.IsShorthand()).To(BeTrue())
			Expect(rule.IsSecure()).To(BeTrue())
		})

		It("passes validation", func() {
			Expect(config.Default(tmpDir).Validate()).To(Succeed())
		})
	})

	Describe("ResolveAliases", func() {
		It("resolves @ to <config-directory>/src", func() {
			resolved, err := config.Default(tmpDir).ResolveAliases()

			Expect(err).NotTo(HaveOccurred())
			Expect(resolved).To(HaveKeyWithValue("@", filepath.Join(tmpDir, "src")))
		})

		It("does not depend on the working directory", func() {
			cfg := config.Default(tmpDir)
			before, err := cfg.ResolveAliases()
			Expect(err).NotTo(HaveOccurred())

			wd, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(os.TempDir())).To(Succeed())
			DeferCleanup(os.Chdir, wd)

			after, err := cfg.ResolveAliases()
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})

		It("keeps absolute targets as they are", func() {
			cfg := config.Default(tmpDir)
			cfg.Resolve.Alias["~lib"] = "/opt/lib/../shared"

			resolved, err := cfg.ResolveAliases()

			Expect(err).NotTo(HaveOccurred())
			Expect(resolved).To(HaveKeyWithValue("~lib", "/opt/shared"))
		})

		It("rejects a relative root", func() {
			cfg := config.Default(tmpDir)
			cfg.Root = "relative"

			_, err := cfg.ResolveAliases()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CheckAliasTargets", func() {
		It("succeeds when every target exists", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, "src"), 0o755)).To(Succeed())

			Expect(config.Default(tmpDir).CheckAliasTargets()).To(Succeed())
		})

		It("names the alias whose target is missing", func() {
			err := config.Default(tmpDir).CheckAliasTargets()

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(`alias "@"`))
		})

		It("rejects a target that is a file", func() {
			writeFile("src", "not a directory")

			err := config.Default(tmpDir).CheckAliasTargets()
			Expect(err).To(MatchError(ContainSubstring("is not a directory")))
		})
	})

	Describe("Load", func() {
		DescribeTable("decodes every supported format to the same record",
			func(name, content string) {
				cfg, err := config.Load(writeFile(name, content))
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Root).To(Equal(tmpDir))
				Expect(cfg.Plugins).To(Equal([]string{"vue"}))
				Expect(cfg.Resolve.Alias).To(Equal(map[string]string{"@": "src"}))
				Expect(cfg.Server.Proxy).To(HaveLen(2))
				Expect(cfg.Server.Proxy["/api"].Target).To(Equal("http://localhost:8080"))
				Expect(cfg.Server.Proxy["/api"].IsShorthand()).To(BeTrue())

				ws := cfg.Server.Proxy["^/ws/.*"]
				Expect(ws.Target).To(Equal("http://localhost:9090"))
				Expect(ws.ChangeOrigin).To(BeTrue())
				Expect(ws.IsSecure()).To(BeFalse())
				Expect(ws.Rewrite).To(Equal(&config.RewriteRule{From: "^/ws", To: ""}))
				Expect(ws.Headers).To(HaveKeyWithValue("X-Dev", "1"))

				Expect(cfg.Server.Host).To(Equal(config.DefaultHost))
				Expect(cfg.Server.Port).To(Equal(config.DefaultPort))
				Expect(cfg.Mode).To(Equal(config.DefaultMode))
			},
			Entry("toml", "devserve.config.toml", tomlConfig),
			Entry("jsonc", "devserve.config.jsonc", jsoncConfig),
			Entry("yaml", "devserve.config.yaml", yamlConfig),
		)

		It("is idempotent", func() {
			path := writeFile("devserve.config.toml", tomlConfig)

			first, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			second, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first))
			want, err := first.Fingerprint()
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Fingerprint()).To(Equal(want))
		})

		It("rejects an unsupported extension", func() {
			_, err := config.Load(writeFile("devserve.config.ini", "plugins=vue"))

			Expect(err).To(MatchError(ContainSubstring("unsupported config format")))
		})

		It("rejects malformed input", func() {
			_, err := config.Load(writeFile("devserve.config.toml", "plugins = [\"vue\""))

			Expect(err).To(MatchError(ContainSubstring("parsing toml")))
		})

		DescribeTable("rejects an unknown proxy option",
			func(name, content string) {
				_, err := config.Load(writeFile(name, content))

				Expect(err).To(MatchError(ContainSubstring(`unknown proxy rule option "ws"`)))
			},
			Entry("toml", "devserve.config.toml",
				"[server.proxy.\"/api\"]\ntarget = \"http://localhost:8080\"\nws = true\n"),
			Entry("json", "devserve.config.json",
				`{"server":{"proxy":{"/api":{"target":"http://localhost:8080","ws":true}}}}`),
			Entry("yaml", "devserve.config.yaml",
				"server:\n  proxy:\n    /api:\n      target: http://localhost:8080\n      ws: true\n"),
		)

		DescribeTable("rejects a rewrite without a string pattern",
			func(name, content string) {
				_, err := config.Load(writeFile(name, content))

				Expect(err).To(MatchError(ContainSubstring("rewrite")))
			},
			Entry("toml non-string", "devserve.config.toml",
				"[server.proxy.\"/api\"]\ntarget = \"http://localhost:8080\"\nrewrite = { from = 1, to = \"\" }\n"),
			Entry("json empty", "devserve.config.json",
				`{"server":{"proxy":{"/api":{"target":"http://localhost:8080","rewrite":{"to":"/v1"}}}}}`),
		)

		It("reports every validation error at once", func() {
			content := `{
				"plugins": [""],
				"server": { "proxy": { "api": "localhost:8080", "/x": "ftp://example.com" } }
			}`
			_, err := config.Load(writeFile("devserve.config.json", content))

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("plugins[0]"))
			Expect(err.Error()).To(ContainSubstring(`server.proxy["api"]`))
			Expect(err.Error()).To(ContainSubstring(`server.proxy["/x"]`))
		})

		It("rejects an invalid rewrite pattern", func() {
			content := `{"server": {"proxy": {"/api": {"target": "http://localhost:8080", "rewrite": {"from": "(", "to": ""}}}}}`
			_, err := config.Load(writeFile("devserve.config.json", content))

			Expect(err).To(MatchError(ContainSubstring("invalid rewrite pattern")))
		})
	})

	Describe("Find", func() {
		It("prefers toml over the other formats", func() {
			writeFile("devserve.config.yaml", yamlConfig)
			tomlPath := writeFile("devserve.config.toml", tomlConfig)

			path, err := config.Find(tmpDir)

			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(tomlPath))
		})

		It("returns ErrNoConfig for an empty directory", func() {
			_, err := config.Find(tmpDir)

			Expect(err).To(MatchError(config.ErrNoConfig))
		})
	})

	Describe("LoadOrDefault", func() {
		It("falls back to the default config", func() {
			cfg, path, err := config.LoadOrDefault("", tmpDir)

			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeEmpty())
			Expect(cfg.Plugins).To(Equal(config.Default(tmpDir).Plugins))
		})

		It("uses the config found in the directory", func() {
			want := writeFile("devserve.config.jsonc", jsoncConfig)

			cfg, path, err := config.LoadOrDefault("", tmpDir)

			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(want))
			Expect(cfg.Server.Proxy).To(HaveKey("^/ws/.*"))
		})
	})

	Describe("ProxyRule JSON", func() {
		It("encodes the shorthand form as a string", func() {
			data, err := json.Marshal(config.ProxyRule{Target: "http://localhost:8080"})

			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(`"http://localhost:8080"`))
		})

		It("encodes options as an object", func() {
			data, err := json.Marshal(config.ProxyRule{Target: "http://localhost:8080", ChangeOrigin: true})

			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(MatchJSON(`{"target":"http://localhost:8080","changeOrigin":true}`))
		})
	})

	Describe("LoadEnv", func() {
		It("layers mode files over base files and filters by prefix", func() {
			writeFile(".env", "DEVSERVE_API=base\nDEVSERVE_TITLE=demo\nSECRET=hidden\n")
			writeFile(".env.development", "DEVSERVE_API=dev\n")
			writeFile(".env.production", "DEVSERVE_API=prod\n")

			env, err := config.LoadEnv(tmpDir, "development", "DEVSERVE_")

			Expect(err).NotTo(HaveOccurred())
			Expect(env).To(HaveKeyWithValue("DEVSERVE_API", "dev"))
			Expect(env).To(HaveKeyWithValue("DEVSERVE_TITLE", "demo"))
			Expect(env).NotTo(HaveKey("SECRET"))
		})

		It("lets the process environment win", func() {
			writeFile(".env", "DEVSERVE_FROM_PROCESS_TEST=file\n")
			GinkgoT().Setenv("DEVSERVE_FROM_PROCESS_TEST", "process")

			env, err := config.LoadEnv(tmpDir, "development", "DEVSERVE_")

			Expect(err).NotTo(HaveOccurred())
			Expect(env).To(HaveKeyWithValue("DEVSERVE_FROM_PROCESS_TEST", "process"))
		})
	})
})
