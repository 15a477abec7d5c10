package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/LubyRuffy/ghcp2o/auth"
	"github.com/briandowns/spinner"
)

func main() {
	var (
		domain = flag.String("domain", "", "github domain (default: github.com, set for GHE)")
		debug  = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manager := auth.NewManager(auth.Config{
		Domain: *domain,
		Debug:  *debug,
	})

	session, err := manager.BeginDeviceFlow(ctx)
	if err != nil {
		log.Fatalf("device flow failed: %v", err)
	}

	fmt.Printf("打开 %s 并输入验证码: %s\n", session.VerificationURI, session.UserCode)
	if !session.ExpiresAt.IsZero() {
		fmt.Printf("验证码有效期至 %s\n", session.ExpiresAt.Local().Format("15:04:05"))
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " 等待浏览器授权..."
	s.Start()
	token, err := session.Poll(ctx)
	s.Stop()

	if err != nil {
		var denied *auth.DeniedError
		switch {
		case errors.Is(err, context.Canceled):
			log.Fatal("已取消")
		case errors.Is(err, auth.ErrDeviceFlowExpired):
			log.Fatal("验证码已过期，请重新运行 ghcp2o-login")
		case errors.As(err, &denied):
			log.Fatalf("授权被拒绝: %s (%s)", denied.Code, denied.Description)
		default:
			log.Fatalf("授权失败: %v", err)
		}
	}

	fmt.Printf("授权成功，凭证类型: %s\n", auth.KindOfToken(token))

	// 立刻换一次短效 token，验证凭证确实可用
	if _, err := manager.Token(ctx); err != nil {
		log.Fatalf("token exchange check failed: %v", err)
	}
	fmt.Println("token 交换验证通过，ghcp2o-server 可以直接使用")
}
