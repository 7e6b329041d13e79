// marketctl: служебная утилита: выпуск тестовых токенов и разбор журнала сверки.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rajivgeraev/agrobazaar-api/internal/config"
	"github.com/rajivgeraev/agrobazaar-api/internal/models"
	"github.com/rajivgeraev/agrobazaar-api/internal/reconcile"
	"github.com/rajivgeraev/agrobazaar-api/internal/session"
	"github.com/rajivgeraev/agrobazaar-api/internal/utils"
)

const usage = `Использование:
  marketctl token -user <id> -name <имя> -role farmer|customer [-ttl 24h]
  marketctl reconcile list
  marketctl reconcile resolve -id <id записи>`

var errUsage = errors.New(usage)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Ошибка конфигурации: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "token":
		return runToken(cfg, args[1:], out)
	case "reconcile":
		if len(args) < 2 {
			return errUsage
		}
		journal, closeJournal, err := openJournal(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeJournal()
		return runReconcile(ctx, journal, args[1], args[2:], out)
	default:
		return errUsage
	}
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "id пользователя")
	name := fs.String("name", "", "имя пользователя")
	role := fs.String("role", "", "роль: farmer или customer")
	ttl := fs.Duration("ttl", utils.DefaultTokenTTL, "срок действия токена")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v\n%s", err, usage)
	}

	sess := session.Session{
		UserID: models.ID(*user),
		Name:   *name,
		Role:   models.Role(*role),
	}
	if err := sess.Validate(); err != nil {
		return err
	}

	token, err := utils.NewJWTService(cfg.JWTSecret).WithTTL(*ttl).GenerateToken(sess)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// openJournal подключается к журналу в Redis. Журнал в памяти принадлежит
// процессу сервера, поэтому без REDIS_ADDR утилите читать нечего.
func openJournal(ctx context.Context, cfg *config.Config) (reconcile.Journal, func() error, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil, errors.New("REDIS_ADDR не задан: журнал сверки хранится только в памяти сервера")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}
	return reconcile.NewRedisJournal(client), client.Close, nil
}

func runReconcile(ctx context.Context, journal reconcile.Journal, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "list":
		entries, err := journal.List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "Открытых записей нет")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tТИП\tКУЛЬТУРА\tЗАКАЗ\tКОЛ-ВО\tКОМПЕНСИРОВАНО\tСОЗДАНО\tОШИБКА")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				e.ID, e.Kind, e.CropID, dash(e.OrderID),
				models.FormatQuantity(e.Quantity), e.Compensated,
				e.CreatedAt.Format(time.RFC3339), e.Error)
		}
		return w.Flush()

	case "resolve":
		fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "id записи журнала")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%v\n%s", err, usage)
		}
		if *id == "" {
			return errUsage
		}
		if err := journal.Resolve(ctx, *id); err != nil {
			return err
		}
		fmt.Fprintf(out, "Запись %s закрыта\n", *id)
		return nil

	default:
		return errUsage
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
