// Command cart is a device-local AfriMarket cart. The cart lives in a file
// under CART_DIR and checkout goes through the payment service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MikeMC777/afrimarket/internal/cart"
	"github.com/MikeMC777/afrimarket/internal/client"
	"github.com/MikeMC777/afrimarket/internal/config"
	"github.com/MikeMC777/afrimarket/internal/money"
	"github.com/MikeMC777/afrimarket/internal/order"
)

const usage = `usage: cart <command> [args]

  add <id> <name> <price> [vendor]   add one unit of a product
  remove <id>                        drop a line
  qty <id> <n>                       set a quantity (0 removes)
  clear                              empty the cart
  show                               list lines and total
  checkout <card|phone|delivery> [details]
  confirm [orderId]                  remove the paid lines once the held payment completed
  abandon                            drop a held payment and unlock checkout
`

// checkoutAPI is what the cart needs from the payment service.
type checkoutAPI interface {
	CreatePayment(ctx context.Context, req order.CreatePaymentRequest, idemKey string) (*order.CreatePaymentResponse, error)
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	FindByReference(ctx context.Context, reference string) (*order.Order, error)
}

type app struct {
	store    *cart.Store
	api      checkoutAPI
	currency string
	out      io.Writer
}

func newApp(storage cart.Storage, api checkoutAPI, currency string, out io.Writer) *app {
	a := &app{api: api, currency: currency, out: out}
	a.store = cart.New(storage, cart.WithCurrency(currency), cart.WithNotifier(a.toast))
	return a
}

func (a *app) toast(n cart.Notice) {
	mark := "+"
	if n.Destructive {
		mark = "!"
	}
	fmt.Fprintf(a.out, "%s %s: %s\n", mark, n.Title, n.Description)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad product id %q", s)
	}
	return id, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "add":
		if len(args) < 3 {
			return errors.New("add <id> <name> <price> [vendor]")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		price, err := money.ParsePrice(args[2])
		if err != nil {
			return err
		}
		p := cart.Product{ID: id, Name: args[1], UnitPrice: price, Currency: a.currency}
		if len(args) > 3 {
			p.VendorName = strings.Join(args[3:], " ")
		}
		a.store.Add(p)
	case "remove":
		if len(args) != 1 {
			return errors.New("remove <id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a.store.Remove(id)
	case "qty":
		if len(args) != 2 {
			return errors.New("qty <id> <n>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad quantity %q", args[1])
		}
		a.store.UpdateQuantity(id, n)
	case "clear":
		a.store.Clear()
	case "show":
		a.show()
	case "checkout":
		if len(args) < 1 {
			return errors.New("checkout <card|phone|delivery> [details]")
		}
		return a.checkout(ctx, order.PaymentMethod(args[0]), strings.Join(args[1:], " "))
	case "confirm":
		id := ""
		if len(args) > 0 {
			id = args[0]
		}
		return a.confirm(ctx, id)
	case "abandon":
		p := a.store.Pending()
		if p == nil {
			return errors.New("no checkout is awaiting payment")
		}
		a.store.AbandonCheckout()
		fmt.Fprintf(a.out, "checkout %s abandoned, your cart is unchanged\n", p.Reference)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	return nil
}

func (a *app) show() {
	items := a.store.Items()
	if len(items) == 0 {
		fmt.Fprintln(a.out, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVENDOR\tQTY\tPRICE\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", it.ProductID, it.Name, it.VendorName, it.Quantity,
			money.Format(it.UnitPrice, it.Currency), money.Format(it.Subtotal(), it.Currency))
	}
	tw.Flush()
	fmt.Fprintf(a.out, "%d items, total %s\n", a.store.TotalItems(), money.Format(a.store.TotalPrice(), a.currency))
	if p := a.store.Pending(); p != nil {
		fmt.Fprintf(a.out, "awaiting payment %s: %s\n", p.Reference, p.URL)
	}
}

func (a *app) checkout(ctx context.Context, method order.PaymentMethod, details string) error {
	snap, err := a.store.BeginCheckout()
	if err != nil {
		return err
	}
	resp, err := a.api.CreatePayment(ctx, order.CreatePaymentRequest{
		Items:          snap.Items,
		TotalAmount:    money.ToMinor(snap.Total),
		Currency:       snap.Currency,
		PaymentMethod:  method,
		PaymentDetails: details,
	}, snap.Fingerprint)
	if err != nil {
		a.store.AbandonCheckout()
		a.toast(cart.Notice{Title: "Payment Failed", Description: err.Error(), Destructive: true})
		return err
	}

	if method == order.MethodDelivery {
		a.store.CompleteCheckout()
		fmt.Fprintf(a.out, "order %s placed, pay %s on delivery\n", resp.OrderID, money.Format(snap.Total, snap.Currency))
		return nil
	}
	a.store.HoldCheckout(cart.Pending{
		Reference:   resp.Reference,
		OrderID:     resp.OrderID,
		URL:         resp.URL,
		Fingerprint: snap.Fingerprint,
	})
	fmt.Fprintf(a.out, "complete your payment at %s\nthen run: cart confirm\n", resp.URL)
	return nil
}

func (a *app) confirm(ctx context.Context, orderID string) error {
	p := a.store.Pending()
	if p == nil {
		return errors.New("no checkout is awaiting payment")
	}
	if orderID == "" {
		orderID = p.OrderID
	}

	var (
		o   *order.Order
		err error
	)
	if orderID != "" {
		o, err = a.api.GetOrder(ctx, orderID)
	} else {
		o, err = a.api.FindByReference(ctx, p.Reference)
	}
	if err != nil {
		return err
	}
	if o.PaymentReference != p.Reference {
		return fmt.Errorf("order %s does not belong to the held checkout", o.ID)
	}

	switch o.Status {
	case order.StatusCompleted:
		a.store.ConfirmCheckout(p.Reference)
		fmt.Fprintf(a.out, "order %s paid\n", o.ID)
	case order.StatusCancelled:
		a.store.AbandonCheckout()
		a.toast(cart.Notice{Title: "Payment Failed", Description: "the payment was not completed, your cart is unchanged", Destructive: true})
	default:
		fmt.Fprintf(a.out, "order %s is still %s\n", o.ID, o.Status)
	}
	return nil
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	fs := flag.NewFlagSet("cart", flag.ExitOnError)
	dir := fs.String("dir", "", "cart directory (default CART_DIR)")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])

	cfg := config.Load()
	if *dir != "" {
		cfg.CartDir = *dir
	}
	if err := os.MkdirAll(cfg.CartDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.CartDir).Msg("[cart] cannot create cart dir")
	}

	api := client.New(cfg.PaymentSvcURL, cfg.CartAccessToken, cfg.Gateway.Timeout+15*time.Second)
	api.Origin = cfg.PublicBaseURL
	a := newApp(cart.NewFileStorage(cfg.CartDir), api, cfg.Currency, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := a.run(ctx, fs.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
