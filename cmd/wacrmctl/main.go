package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/wacrm/wacrm/internal/config"
	"github.com/wacrm/wacrm/internal/workspace"
)

func main() {
	addrFlag := flag.String("addr", "", "daemon http address (overrides config)")
	tokenFlag := flag.String("token", "", "session token (defaults to $WACRM_TOKEN)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &ctl{
		base:    "http://" + resolveAddr(*addrFlag),
		token:   resolveToken(*tokenFlag),
		jsonOut: *jsonFlag,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	switch args[0] {
	case "login":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl login <email> <password>")
			os.Exit(1)
		}
		c.cmdLogin(args[1], args[2])
	case "status":
		c.cmdStatus()
	case "qr":
		c.cmdQR()
	case "sync":
		if len(args) != 2 || (args[1] != "start" && args[1] != "stop") {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl sync <start|stop>")
			os.Exit(1)
		}
		c.cmdSync(args[1])
	case "report":
		c.cmdReport()
	case "conversations":
		c.cmdConversations()
	case "broadcasts":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wacrmctl broadcasts <list|launch <id>>")
			os.Exit(1)
		}
		switch args[1] {
		case "list":
			c.cmdBroadcastsList()
		case "launch":
			if len(args) != 3 {
				fmt.Fprintln(os.Stderr, "usage: wacrmctl broadcasts launch <id>")
				os.Exit(1)
			}
			c.cmdBroadcastLaunch(args[2])
		default:
			fmt.Fprintf(os.Stderr, "unknown broadcasts subcommand: %s\n", args[1])
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wacrmctl [--addr <host:port>] [--token <jwt>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <email> <password>   Print a session token")
	fmt.Fprintln(os.Stderr, "  status                     Show device status")
	fmt.Fprintln(os.Stderr, "  qr                         Render the pairing QR code in the terminal")
	fmt.Fprintln(os.Stderr, "  sync <start|stop>          Start or stop syncing with the paired account")
	fmt.Fprintln(os.Stderr, "  report                     Show workspace counters")
	fmt.Fprintln(os.Stderr, "  conversations              List inbox conversations")
	fmt.Fprintln(os.Stderr, "  broadcasts list            List broadcasts")
	fmt.Fprintln(os.Stderr, "  broadcasts launch <id>     Launch a draft broadcast")
}

func resolveAddr(override string) string {
	if override != "" {
		return override
	}
	if cfg, err := config.Load(workspace.ConfigPath()); err == nil && cfg.HTTPAddr != "" {
		return cfg.HTTPAddr
	}
	return config.Default().HTTPAddr
}

func resolveToken(override string) string {
	if override != "" {
		return override
	}
	return os.Getenv("WACRM_TOKEN")
}

type ctl struct {
	base    string
	token   string
	jsonOut bool
	client  *http.Client
}

func (c *ctl) request(method, path string, body any, out any) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			fatal("encode request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		fatal("%v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		fatal("cannot reach daemon at %s: %v", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		fatal("%s", apiErr.Error)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatal("decode response: %v", err)
		}
	}
}

func (c *ctl) cmdLogin(email, password string) {
	var resp struct {
		Token string `json:"token"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	}
	c.request("POST", "/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if c.jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Logged in as %s (%s)\n", resp.Name, resp.Role)
	fmt.Printf("export WACRM_TOKEN=%s\n", resp.Token)
}

func (c *ctl) cmdStatus() {
	var resp map[string]any
	c.request("GET", "/api/device", nil, &resp)
	if c.jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("State:      %v\n", resp["state"])
	if phone, ok := resp["phone"]; ok {
		fmt.Printf("Phone:      %v\n", phone)
	}
	if pending, ok := resp["qr_pending"].(bool); ok && pending {
		fmt.Println("Pairing QR available at /api/device/qr.png")
	}
}

func (c *ctl) cmdQR() {
	var resp struct {
		State  string `json:"state"`
		QRCode string `json:"qr_code"`
	}
	c.request("GET", "/api/device", nil, &resp)
	if resp.QRCode == "" {
		fatal("no pairing in progress (device state: %s)", resp.State)
	}
	qr, err := qrcode.New(resp.QRCode, qrcode.Low)
	if err != nil {
		fatal("render qr: %v", err)
	}
	fmt.Println("Scan with WhatsApp on your phone:")
	fmt.Print(qr.ToSmallString(false))
}

func (c *ctl) cmdSync(action string) {
	c.request("POST", "/api/device/sync/"+action, nil, nil)
	if action == "start" {
		fmt.Println("Sync starting.")
	} else {
		fmt.Println("Sync stopped.")
	}
}

func (c *ctl) cmdReport() {
	var resp map[string]int64
	c.request("GET", "/api/report", nil, &resp)
	if c.jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Conversations:     %d\n", resp["conversations"])
	fmt.Printf("Active chats:      %d\n", resp["active_chats"])
	fmt.Printf("Clients:           %d\n", resp["clients"])
	fmt.Printf("Leads:             %d\n", resp["leads"])
	fmt.Printf("Messages sent:     %d\n", resp["messages_sent"])
	fmt.Printf("Messages received: %d\n", resp["messages_received"])
	fmt.Printf("Broadcasts:        %d\n", resp["broadcasts"])
}

func (c *ctl) cmdConversations() {
	var resp struct {
		Conversations []struct {
			ID                 string `json:"id"`
			ContactName        string `json:"contact_name"`
			ContactType        string `json:"contact_type"`
			UnreadCount        int    `json:"unread_count"`
			LastMessagePreview string `json:"last_message_preview"`
		} `json:"conversations"`
	}
	c.request("GET", "/api/conversations", nil, &resp)
	if c.jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range resp.Conversations {
		unread := ""
		if conv.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("%-36s %-8s %-20s %s%s\n",
			conv.ID, conv.ContactType, conv.ContactName, conv.LastMessagePreview, unread)
	}
}

func (c *ctl) cmdBroadcastsList() {
	var resp struct {
		Broadcasts []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Status      string `json:"status"`
			QueuedCount int    `json:"queued_count"`
			SentCount   int    `json:"sent_count"`
			FailedCount int    `json:"failed_count"`
		} `json:"broadcasts"`
	}
	c.request("GET", "/api/broadcasts", nil, &resp)
	if c.jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Broadcasts) == 0 {
		fmt.Println("No broadcasts.")
		return
	}
	for _, bc := range resp.Broadcasts {
		fmt.Printf("%-36s %-10s %-20s queued=%d sent=%d failed=%d\n",
			bc.ID, bc.Status, bc.Name, bc.QueuedCount, bc.SentCount, bc.FailedCount)
	}
}

func (c *ctl) cmdBroadcastLaunch(id string) {
	c.request("POST", "/api/broadcasts/"+id+"/launch", nil, nil)
	fmt.Println("Broadcast launched.")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
