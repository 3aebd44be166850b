package codeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadloom/beadloom/internal/model"
)

func TestParseFileExtractsGoFunctionsAndMethods(t *testing.T) {
	src := []byte(`package billing

// beadloom:domain=billing
func CreateInvoice(id string) error {
	return nil
}

type Store struct{}

func (s *Store) Save(i int) error {
	return nil
}
`)
	p := NewParser()
	defer p.Close()

	symbols, err := p.ParseFile("src/billing/invoice.go", src)
	require.NoError(t, err)
	require.Len(t, symbols, 3)

	var fn, method *model.CodeSymbol
	for i := range symbols {
		switch symbols[i].SymbolName {
		case "CreateInvoice":
			fn = &symbols[i]
		case "Save":
			method = &symbols[i]
		}
	}
	require.NotNil(t, fn)
	require.NotNil(t, method)
	assert.Equal(t, model.SymbolFunction, fn.Kind)
	assert.Equal(t, "billing", fn.Annotations["domain"])
	assert.Equal(t, model.SymbolMethod, method.Kind)
}

func TestParseFileMarksGoTestFunctions(t *testing.T) {
	src := []byte(`package billing

func TestCreateInvoice(t *testing.T) {}
`)
	p := NewParser()
	defer p.Close()

	symbols, err := p.ParseFile("src/billing/invoice_test.go", src)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, model.SymbolTest, symbols[0].Kind)
}

func TestParseFileUnsupportedExtReturnsNil(t *testing.T) {
	p := NewParser()
	defer p.Close()
	symbols, err := p.ParseFile("README.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Nil(t, symbols)
}

func TestParseFilePython(t *testing.T) {
	src := []byte(`
class Invoice:
    def total(self):
        return 0

def test_total():
    assert True
`)
	p := NewParser()
	defer p.Close()

	symbols, err := p.ParseFile("app/billing/invoice.py", src)
	require.NoError(t, err)

	kinds := map[string]model.SymbolKind{}
	for _, s := range symbols {
		kinds[s.SymbolName] = s.Kind
	}
	assert.Equal(t, model.SymbolClass, kinds["Invoice"])
	assert.Equal(t, model.SymbolFunction, kinds["total"])
}

func TestExtractRoutesFastAPI(t *testing.T) {
	src := []byte(`@app.get("/invoices/{id}")
def get_invoice(id: str):
    pass
`)
	routes := ExtractRoutes("app/billing/api.py", src)
	require.Len(t, routes, 1)
	assert.Equal(t, "GET", routes[0].RouteMethod)
	assert.Equal(t, "/invoices/{id}", routes[0].RoutePath)
	assert.Equal(t, "get_invoice", routes[0].RouteHandler)
	assert.Equal(t, model.SymbolRoute, routes[0].Kind)
}

func TestExtractRoutesExpress(t *testing.T) {
	src := []byte(`router.post('/invoices', function createInvoice(req, res) {})`)
	routes := ExtractRoutes("src/billing/routes.js", src)
	require.Len(t, routes, 1)
	assert.Equal(t, "POST", routes[0].RouteMethod)
	assert.Equal(t, "/invoices", routes[0].RoutePath)
}

func TestExtractRoutesProto(t *testing.T) {
	src := []byte("service Billing {\n  rpc CreateInvoice (Req) returns (Resp);\n}\n")
	routes := ExtractRoutes("proto/billing.proto", src)
	require.Len(t, routes, 1)
	assert.Equal(t, "CreateInvoice", routes[0].SymbolName)
	assert.Equal(t, "RPC", routes[0].RouteMethod)
}
