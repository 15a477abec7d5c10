package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/ghcp2o"
	"github.com/LubyRuffy/ghcp2o/auth"
	"github.com/LubyRuffy/ghcp2o/openaihttp"
	"github.com/gin-gonic/gin"
)

func main() {
	var (
		listen   = flag.String("listen", "127.0.0.1:8080", "listen address")
		basePath = flag.String("base-path", "/v1", "base path prefix")
		domain   = flag.String("domain", "", "github domain (default: github.com, set for GHE)")
		baseURL  = flag.String("base-url", "", "copilot chat completions url (default: "+ghcp2o.DefaultChatURL+")")
		token    = flag.String("token", "", "github oauth token (default: resolve from local copilot config)")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	manager := auth.NewManager(auth.Config{
		Credential: *token,
		Domain:     *domain,
		BaseURL:    *baseURL,
		Debug:      *debug,
	})
	if !manager.HasCredential() {
		log.Printf("warning: no github credential found, run `ghcp2o-login` first or pass -token")
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	err := openaihttp.RegisterGinRoutes(r, openaihttp.Config{
		BasePath: *basePath,
		ChatURL:  manager.ChatURL(),
		Headers:  manager.Headers,
	})
	if err != nil {
		log.Fatalf("register routes failed: %v", err)
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	clientAddr := addrForLocalClient(*listen)
	log.Printf("ghcp2o server listening on http://%s%s", clientAddr, *basePath)
	log.Printf("try: curl http://%s%s/models", clientAddr, *basePath)
	log.Printf("try: curl http://%s%s/chat/completions -H 'Content-Type: application/json' -d '{\"model\":\"%sgpt-4o\",\"messages\":[{\"role\":\"user\",\"content\":\"hi\"}]}'", clientAddr, *basePath, ghcp2o.ModelNamespace)
	log.Printf("OpenAI SDK base_url: http://%s%s", clientAddr, *basePath)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
	}
}

// addrForLocalClient 把监听地址转成本机客户端可访问的地址（通配地址替换为回环）。
func addrForLocalClient(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch strings.TrimSpace(host) {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("127.0.0.1", port)
	}
	return net.JoinHostPort(host, port)
}
