package lookupclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/valyala/fastjson"

	"github.com/iurnickita/mercados/internal/model"
)

// Запрос во внешнюю систему: EC - налог на недвижимость, ICS - счёт за воду
type Query struct {
	Type         string
	CadastralKey string
	NationalID   string
	ICSNumber    string
	Amnesty      bool
}

// Ответ внешней системы.
// Total - итоговая сумма как строка, nil если в ответе нет числового итога.
type Answer struct {
	Total *string
	Body  []byte
}

var ErrUnavailable = errors.New("lookup service unavailable")

type LookupClient interface {
	Lookup(ctx context.Context, query Query) (Answer, error)
}

type lookupClient struct {
	client *resty.Client
	parser fastjson.ParserPool
}

func NewLookupClient(serviceAddr string, timeout time.Duration) LookupClient {
	client := resty.New().
		SetBaseURL(serviceAddr).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &lookupClient{client: client}
}

func (c *lookupClient) Lookup(ctx context.Context, query Query) (Answer, error) {
	req := c.client.R().SetContext(ctx)

	var path string
	switch query.Type {
	case model.ConsultationTypeEC:
		path = "/api/ec"
		if query.CadastralKey != "" {
			req.SetQueryParam("clave", query.CadastralKey)
		}
		if query.NationalID != "" {
			req.SetQueryParam("dni", query.NationalID)
		}
		req.SetQueryParam("amnistia", strconv.FormatBool(query.Amnesty))
	case model.ConsultationTypeICS:
		path = "/api/ics"
		req.SetQueryParam("ics", query.ICSNumber)
		req.SetQueryParam("amnistia", strconv.FormatBool(query.Amnesty))
	default:
		return Answer{}, fmt.Errorf("unknown lookup type %q", query.Type)
	}

	resp, err := req.Get(path)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return Answer{Total: c.total(resp.Body()), Body: resp.Body()}, nil
	case http.StatusNotFound:
		// Ничего не найдено - валидный ответ с пустым итогом
		return Answer{Body: resp.Body()}, nil
	default:
		return Answer{}, fmt.Errorf("%w: lookup request status: %d", ErrUnavailable, resp.StatusCode())
	}
}

// total достаёт поле total из ответа: число или числовая строка.
func (c *lookupClient) total(body []byte) *string {
	p := c.parser.Get()
	defer c.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil
	}
	t := v.Get("total")
	if t == nil {
		return nil
	}
	var s string
	switch t.Type() {
	case fastjson.TypeNumber:
		s = t.String()
	case fastjson.TypeString:
		s = string(t.GetStringBytes())
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}
