package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-relay/internal/config"
	"github.com/zhouzirui/z-relay/internal/logger"
	"github.com/zhouzirui/z-relay/internal/service/relay"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	message := flag.String("message", "", "发送给 agent 的消息文本")
	sessionID := flag.String("session", "", "继续已有会话的 sessionID，留空则新建会话")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if strings.TrimSpace(*message) == "" {
		flag.Usage()
		log.Fatal("请通过 -message 提供待发送文本")
	}

	agentCfg, err := config.LoadAgent()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	client := relay.NewClient(agentCfg, logger.New())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("开始调用 agent: endpoint=%s agent=%s session=%q", agentCfg.BaseURL, agentCfg.AgentID, *sessionID)

	reply, err := client.Send(ctx, *message, *sessionID)
	if err != nil {
		log.Fatalf("agent 调用失败: %v", err)
	}

	log.Printf("agent 回复成功: session=%q length=%d", reply.SessionID, len(reply.Text))
	fmt.Println(reply.Text)
}
