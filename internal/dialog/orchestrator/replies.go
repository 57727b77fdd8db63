package orchestrator

// User-facing reply texts. WhatsApp renders *bold* markup; keep replies short
// enough for a phone screen.
const (
	menuBody = "Puedo ayudarte con:\n" +
		"1️⃣ Emitir una *boleta* o *factura*\n" +
		"2️⃣ Ver tus *productos*\n" +
		"3️⃣ Ver tus *clientes*\n" +
		"4️⃣ Ver tu *historial* de comprobantes\n\n" +
		"Escríbeme lo que necesitas, por ejemplo: \"boleta dni 45678912, 2 gaseosas a 3.50\"."

	replyEmptyMessage = "No recibí ningún mensaje. Escríbeme qué necesitas o envíame una nota de voz. 🎙️"

	replyAudioFailed = "No pude entender tu nota de voz. 🎙️ ¿Puedes repetirla o escribirme el mensaje?"

	replyNotRegistered = "Tu número no está registrado en TinRed. 📞 Comunícate con soporte para activar tu cuenta y vuelve a escribirme."

	replyServiceDown = "Tuve un problema al conectarme con TinRed. 🔌 Intenta de nuevo en unos minutos."

	// %s is the registered business name.
	replyTermsPrompt = "¡Hola! Soy *Jack*, el asistente de facturación de *%s*. 🤖\n\n" +
		"Antes de comenzar necesito que aceptes los términos y condiciones del servicio: " +
		"tus mensajes se procesan para emitir comprobantes electrónicos a través de TinRed.\n\n" +
		"¿Aceptas? (sí/no)"

	replyTermsDeclined = "Entendido. Si cambias de opinión, aquí estaré. 👋"

	replyCancelled = "Listo, cancelé la operación. 🗑️\n\n" + menuBody

	replyReconfirmAgain = "Necesito un DNI (8 dígitos) o un RUC (11 dígitos) válido para continuar, o escribe \"cancelar\"."

	// %s is TinRed's rejection message.
	replyEmissionRejected = "⚠️ TinRed rechazó la emisión: %s\n\nRevisa los datos y vuelve a intentarlo."
)

// Canned answers for the high-traffic questions; these never cost an LLM call.
const (
	cannedDifference = "📌 *Factura vs. Boleta:*\n\n" +
		"• *Factura* (código 01): para clientes con *RUC* (empresas). Permite usar el IGV como crédito fiscal.\n" +
		"• *Boleta* (código 03): para clientes con *DNI* (personas). Es el comprobante de venta al consumidor final.\n\n" +
		"Si me das un DNI asumo boleta; con un RUC te pregunto cuál prefieres."

	cannedIGV = "📌 El *IGV* (Impuesto General a las Ventas) es el impuesto del *18%* incluido en el precio de venta en Perú. " +
		"En tus comprobantes lo desgloso automáticamente: no tienes que calcularlo."

	cannedHowToEmit = "📌 Emitir es fácil: dime el tipo de documento, el DNI o RUC del cliente y los productos con su precio. " +
		"Todo puede ir en un solo mensaje:\n\n" +
		"\"boleta dni 45678912, 2 cuadernos a 15 y 5 lapiceros a 3\"\n\n" +
		"Yo valido el documento en SUNAT, te muestro el resumen y con tu \"sí\" queda emitido. ✅"
)
